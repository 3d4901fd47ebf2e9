package pagefile

import "github.com/pagefiledb/pagefile/internal/util"

// Kind and its values are re-exported at the package root so callers never
// need to import internal/util directly to branch on a failure reason.
type Kind = util.Kind

const (
	KindInvalidDatabase        = util.KindInvalidDatabase
	KindInvalidDatabaseVersion = util.KindInvalidDatabaseVersion
	KindFileNotFound           = util.KindFileNotFound
	KindFileCorrupted          = util.KindFileCorrupted
	KindLockTimeout            = util.KindLockTimeout
	KindIndexDuplicateKey      = util.KindIndexDuplicateKey
	KindIndexNotFound          = util.KindIndexNotFound
	KindIndexKeyTooLong        = util.KindIndexKeyTooLong
	KindInvalidFormat          = util.KindInvalidFormat
	KindDocumentMaxDepth       = util.KindDocumentMaxDepth
	KindInvalidDataType        = util.KindInvalidDataType
	KindCollectionLimitSize    = util.KindCollectionLimitSize
)

// Error is the engine's typed error, re-exported for the same reason.
type Error = util.Error
