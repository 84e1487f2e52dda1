// Package resolve turns a feed post's outbound links and raw text into
// full-resolution source images. Each platform has its own resolver;
// callers try them in a fixed order and stop at the first one that yields
// images.
package resolve
