// Package pathrs holds the lexical path checks used to keep sandboxed work
// inside the caller's home directory.
package pathrs

import (
	"path/filepath"
	"strings"
)

// IsLexicallyInRoot reports whether path is root or lies below it. Both
// paths must be absolute; they are cleaned first, so "/home/u/../v" is not
// within "/home/u". Symlinks are not resolved.
func IsLexicallyInRoot(root, path string) bool {
	if !filepath.IsAbs(root) || !filepath.IsAbs(path) {
		return false
	}
	root = strings.TrimRight(filepath.Clean(root), "/")
	path = strings.TrimRight(filepath.Clean(path), "/")
	return strings.HasPrefix(path+"/", root+"/")
}

// LexicallyStripRoot returns path relative to root, as an absolute path: the
// result is "/" for root itself and "/a/b" for root+"/a/b". path must be
// within root according to IsLexicallyInRoot.
func LexicallyStripRoot(root, path string) string {
	root, path = filepath.Clean("/"+root), filepath.Clean("/"+path)
	switch {
	case path == root:
		return "/"
	case root == "/":
		return path
	}
	return filepath.Clean("/" + strings.TrimPrefix(path, root+"/"))
}

// Translate maps path from below oldRoot to the same place below newRoot,
// reporting false if path is not within oldRoot.
func Translate(oldRoot, newRoot, path string) (string, bool) {
	if !IsLexicallyInRoot(oldRoot, path) {
		return "", false
	}
	return filepath.Join(newRoot, LexicallyStripRoot(oldRoot, path)), true
}
