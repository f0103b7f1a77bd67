package core

const (
	OneMegabyte = 1024 * 1024 // 1024 (1KB) * 1024 => 1MB
	OneGigabyte = 1024 * OneMegabyte

	DefaultMaxSegmentSizeMB = 64
	DefaultMaxSegmentSize   = DefaultMaxSegmentSizeMB * OneMegabyte

	// Permissions for a data directory created by Open
	dataDirPerm = 0755
)
