package constants

// LatestStateVersion is the version written into every new state file.
//
// Version History:
//   - Version 0: flat map of stream name to bookmark value, no partitions
//   - Version 1: Current Version
//     * streams are a list of {stream, namespace, partition, state} entries
//     * partitioned child streams keep one entry per parent context
const (
	LatestStateVersion = 1
)
