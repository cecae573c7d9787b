// Command strmsync mirrors an IPTV playlist into a media-server library of
// .strm pointer files.
//
// `strmsync run` performs one sync: it indexes the existing library, parses
// the playlist, filters titles by production country and original language,
// writes the pointer files and removes the ones that no longer apply. The
// `config` and `cache` subcommands inspect and maintain the setup between
// runs.
package main
