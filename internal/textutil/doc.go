// Package textutil holds small string helpers shared by packages that turn
// titles into filesystem paths.
package textutil
