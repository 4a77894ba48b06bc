// Package lead defines the records, jobs, and capability interfaces shared by
// the lead scraping pipeline: the renderer sessions, the extractor output, and
// the ordered Lead Records handed to exporters.
package lead
