// Package fileutil provides small filesystem helpers for writing pointer
// files and pruning the output tree.
package fileutil
