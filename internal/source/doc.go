// Package source provides uniform directory listing over the storage
// backends a server can live on: local disk, a mounted network share, or an
// FTP server.
//
// All paths handled by this package are logical forward-slash paths rooted at
// the server's configured root (for example "/auto scan data/CMP/LOT01").
// Filesystem sources map them to OS paths; FTP sources send them as-is.
//
// Listing errors caused by permissions or missing directories yield an empty
// result. Other failures are returned wrapped in ErrListingFailed so the
// caller can log them and carry on with the rest of the walk.
package source
