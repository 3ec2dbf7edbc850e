package fs

import "context"
import "fmt"
import "strconv"
import "time"

import "github.com/jacobsa/syncutil"
import "github.com/jacobsa/timeutil"
import "golang.org/x/sync/errgroup"
import "golang.org/x/sync/singleflight"

import "defs"
import "mem"

/// NCACHE_ENTRIES is the fixed size of the block cache.
const NCACHE_ENTRIES = 64

/// FLUSH_INTERVAL_TICKS is how many background-task ticks elapse
/// between flushes of dirty entries.
const FLUSH_INTERVAL_TICKS = 20

var cache_debug = false

/// centry_t is one cache slot: a cached block plus the bookkeeping
/// the eviction policy needs. GUARDED_BY(bc.mu) unless noted.
type centry_t struct {
	sector   int
	blk      *Bdev_block_t
	dirty    bool
	inuse    bool
	accessed time.Time
}

/// Bcache_t is the fixed-size write-back sector cache every inode and
/// directory operation reads and writes through. There is no journal;
/// FlushAll (called periodically and at shutdown) is the only
/// durability mechanism.
type Bcache_t struct {
	mu      syncutil.InvariantMutex
	ents    []centry_t  // GUARDED_BY(mu)
	bysec   map[int]int // sector -> index into ents, GUARDED_BY(mu)
	lastsec int         // most recently loaded sector, for read-ahead. GUARDED_BY(mu)

	disk  Disk_i
	bm    Blockmem_i
	clock timeutil.Clock
	sf    singleflight.Group

	// rasem gates the background read-ahead task with a non-blocking
	// acquire, so two read-ahead passes never overlap. Only read-ahead
	// takes it; foreground Read/Write still share bc.mu with read-ahead.
	rasem chan struct{}

	cancel context.CancelFunc
	eg     *errgroup.Group
}

/// MkCache constructs a cache of NCACHE_ENTRIES slots backed by disk.
/// If clock is nil, the real wall clock is used.
func MkCache(disk Disk_i, phys *mem.Physmem_t, clock timeutil.Clock) *Bcache_t {
	if clock == nil {
		clock = timeutil.RealClock()
	}
	bc := &Bcache_t{
		ents:  make([]centry_t, NCACHE_ENTRIES),
		bysec: make(map[int]int),
		disk:  disk,
		bm:    mkPhysBlockmem(phys),
		clock: clock,
		rasem: make(chan struct{}, 1),
	}
	bc.rasem <- struct{}{}
	bc.mu = syncutil.NewInvariantMutex(bc.checkInvariants)
	return bc
}

func (bc *Bcache_t) checkInvariants() {
	seen := make(map[int]bool)
	for i := range bc.ents {
		e := &bc.ents[i]
		if !e.inuse {
			continue
		}
		if seen[e.sector] {
			panic("cache: duplicate entry for sector")
		}
		seen[e.sector] = true
		if idx, ok := bc.bysec[e.sector]; !ok || idx != i {
			panic("cache: bysec index out of sync")
		}
	}
}

// findslot returns the index of sector's entry, allocating and
// loading one on miss. Caller holds bc.mu on entry and on return; on
// a miss the lock is dropped around the disk read so that a second
// goroutine racing to fill the same sector joins the first fetch
// through sf instead of issuing its own disk read.
func (bc *Bcache_t) findslot(sector int) int {
	if idx, ok := bc.bysec[sector]; ok {
		return idx
	}

	bc.mu.Unlock()
	v, _, _ := bc.sf.Do(strconv.Itoa(sector), func() (interface{}, error) {
		blk := MkBlock_newpage(sector, "fscache", bc.bm, bc.disk, nil)
		blk.Read()
		return blk, nil
	})
	bc.mu.Lock()

	// Another goroutine may have installed sector while bc.mu was
	// released: either it lost the sf race and waited on this same
	// fetch, or it won an unrelated race entirely.
	if idx, ok := bc.bysec[sector]; ok {
		return idx
	}

	idx, ok := bc.alloc()
	if !ok {
		idx = bc.evict()
	}
	e := &bc.ents[idx]
	e.sector = sector
	e.blk = v.(*Bdev_block_t)
	e.dirty = false
	e.inuse = true
	bc.bysec[sector] = idx
	bc.lastsec = sector
	return idx
}

func (bc *Bcache_t) alloc() (int, bool) {
	for i := range bc.ents {
		if !bc.ents[i].inuse {
			return i, true
		}
	}
	return 0, false
}

// evict picks the in-use entry with the oldest access time, writes it
// back if dirty, and returns its (now free) index. Caller holds bc.mu.
func (bc *Bcache_t) evict() int {
	victim := -1
	for i := range bc.ents {
		if !bc.ents[i].inuse {
			continue
		}
		if victim == -1 || bc.ents[i].accessed.Before(bc.ents[victim].accessed) {
			victim = i
		}
	}
	if victim == -1 {
		panic("cache: nothing to evict")
	}
	e := &bc.ents[victim]
	if e.dirty {
		e.blk.Write()
	}
	e.blk.Free_page()
	delete(bc.bysec, e.sector)
	e.inuse = false
	e.blk = nil
	return victim
}

/// Read copies sector's cached bytes into out. On a miss it loads the
/// sector from disk first.
func (bc *Bcache_t) Read(sector int, out []uint8) defs.Err_t {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	idx := bc.findslot(sector)
	e := &bc.ents[idx]
	copy(out, e.blk.Data[:])
	e.accessed = bc.clock.Now()
	return 0
}

/// Write copies in into sector's cached bytes and marks the entry
/// dirty. On a miss the sector is loaded first so partial-sector
/// writes don't corrupt the untouched bytes.
func (bc *Bcache_t) Write(sector int, in []uint8) defs.Err_t {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	idx := bc.findslot(sector)
	e := &bc.ents[idx]
	copy(e.blk.Data[:], in)
	e.dirty = true
	e.accessed = bc.clock.Now()
	return 0
}

/// FlushAll writes back every dirty entry.
func (bc *Bcache_t) FlushAll() defs.Err_t {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for i := range bc.ents {
		e := &bc.ents[i]
		if e.inuse && e.dirty {
			e.blk.Write()
			e.dirty = false
		}
	}
	return 0
}

// readahead opportunistically loads the sector after the last one
// touched. rasem is acquired without blocking, so a pass is skipped
// while another is running; bc.mu is taken with an ordinary blocking
// Lock and held except during the disk read, so foreground Read/Write
// can wait on a read-ahead pass.
func (bc *Bcache_t) readahead() {
	select {
	case <-bc.rasem:
	default:
		return
	}
	defer func() { bc.rasem <- struct{}{} }()

	bc.mu.Lock()
	defer bc.mu.Unlock()
	next := bc.lastsec + 1
	if _, ok := bc.bysec[next]; ok {
		return
	}
	if _, ok := bc.alloc(); !ok {
		return // don't evict just to read ahead
	}
	if cache_debug {
		fmt.Printf("readahead: sector %v\n", next)
	}
	bc.findslot(next)
}

/// Start launches the background flush/read-ahead task. tick is the
/// real-time interval between ticks; flushes happen every
/// FLUSH_INTERVAL_TICKS ticks.
func (bc *Bcache_t) Start(ctx context.Context, tick time.Duration) {
	ctx, bc.cancel = context.WithCancel(ctx)
	eg, ctx := errgroup.WithContext(ctx)
	bc.eg = eg
	eg.Go(func() error {
		t := time.NewTicker(tick)
		defer t.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				n++
				if n%FLUSH_INTERVAL_TICKS == 0 {
					bc.FlushAll()
				}
				bc.readahead()
			}
		}
	})
}

/// Stop cancels the background task, waits for it to exit, and
/// flushes any remaining dirty entries.
func (bc *Bcache_t) Stop() {
	if bc.cancel != nil {
		bc.cancel()
		bc.eg.Wait()
	}
	bc.FlushAll()
}
