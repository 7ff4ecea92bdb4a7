// Package cachekey derives deterministic, filesystem-safe cache keys for
// thumbnail requests from the source filename and the requested dimensions.
package cachekey
