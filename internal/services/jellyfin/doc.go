// Package jellyfin asks a Jellyfin or Emby server to rescan its libraries
// after the output tree changed.
//
// The HTTP refresher posts to /Library/Refresh with the X-Emby-Token header.
// When no URL or API key is configured a no-op refresher is returned so the
// pipeline can call Refresh unconditionally.
package jellyfin
