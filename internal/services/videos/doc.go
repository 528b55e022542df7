// Package videos holds the video catalog service: uploads by creators and
// the reviewer selection that opens verification requests.
package videos
