// Package mediatypes defines the raster formats the thumbnail service
// accepts and produces, and detects a file's format from its content
// rather than its extension.
package mediatypes
