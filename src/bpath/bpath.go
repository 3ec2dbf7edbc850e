// Package bpath implements path canonicalization and the split into
// (directory-path, final-name) that the directory layer resolves
// segment by segment.
package bpath

import "bytes"

import "ustr"

// Canonicalize collapses "." and ".." components and repeated slashes
// out of an absolute path, the way a shell would before handing the
// result to the directory layer. p must be absolute; Canonicalize
// panics otherwise, since callers (Cwd_t.Canonicalpath) only ever pass
// an already-rooted path.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	if !p.IsAbsolute() {
		panic("bpath: path must be absolute")
	}
	segs := split(p)
	out := make([]ustr.Ustr, 0, len(segs))
	for _, s := range segs {
		switch {
		case len(s) == 0:
		case s.Isdot():
		case s.Isdotdot():
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return ustr.MkUstrRoot()
	}
	r := ustr.MkUstr()
	for _, s := range out {
		r = append(r, '/')
		r = append(r, s...)
	}
	return r
}

// Split_path returns the canonicalized path's parent directory and
// final path component. An empty final component means p names the
// root or a directory itself, not an entry within one.
func Split_path(p ustr.Ustr) (ustr.Ustr, ustr.Ustr) {
	c := Canonicalize(p)
	i := bytes.LastIndexByte(c, '/')
	if i <= 0 {
		return ustr.MkUstrRoot(), c[i+1:]
	}
	return c[:i], c[i+1:]
}

// Segments canonicalizes p and returns its '/'-delimited path
// components in left-to-right order, the traversal unit path
// resolution walks one directory lookup at a time.
func Segments(p ustr.Ustr) []ustr.Ustr {
	c := Canonicalize(p)
	return split(c)
}

// split breaks p into its '/'-delimited segments, dropping empties
// produced by leading or repeated slashes.
func split(p ustr.Ustr) []ustr.Ustr {
	var segs []ustr.Ustr
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				segs = append(segs, p[start:i])
			}
			start = i + 1
		}
	}
	return segs
}
