// Package policy holds the per-category storage policies that drive the
// router's backend fan-out.
//
// A Table starts from built-in defaults, can be overridden by a YAML file,
// and can hot-reload that file via Watch. Every category resolves to a
// policy: unknown categories fall back to a safe default rather than
// erroring.
package policy
