package cache

import "fmt"

// 键语义：
// - snapContentKey(docID): 文档最新内容快照（String）
// - snapVersionKey(docID): 快照对应的版本号（String<uint64>）

const (
	keySnapContentFmt = "ot:snapshot:content:{docID:%s}"
	keySnapVersionFmt = "ot:snapshot:version:{docID:%s}"
)

func snapContentKey(docID string) string { return fmt.Sprintf(keySnapContentFmt, docID) }
func snapVersionKey(docID string) string { return fmt.Sprintf(keySnapVersionFmt, docID) }
