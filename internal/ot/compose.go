package ot

// Compose 尝试把相邻/相消的一对操作合并成一个。
// 只处理三种情况，其余一律返回 ok=false——合并是压缩优化，不影响正确性：
//   - 两个 insert：a 的末尾正好是 b 的插入点，内容拼接；
//   - 两个 delete：同一位置，长度相加（b 删的是 a 删完后顶上来的文本）；
//   - insert 紧跟同位置等长 delete：完全相消，合成零长度 retain。
func Compose(a, b Operation) (Operation, bool) {
	switch {
	case a.Type == KindInsert && b.Type == KindInsert &&
		a.Position+a.ContentLen() == b.Position:
		return Operation{Type: KindInsert, Position: a.Position, Content: a.Content + b.Content}, true

	case a.Type == KindDelete && b.Type == KindDelete &&
		a.Position == b.Position:
		return Operation{Type: KindDelete, Position: a.Position, Length: a.Length + b.Length}, true

	case a.Type == KindInsert && b.Type == KindDelete &&
		a.Position == b.Position && a.ContentLen() == b.Length:
		return Operation{Type: KindRetain, Position: a.Position, Length: 0}, true
	}
	return Operation{}, false
}

// Normalize 先丢弃零影响操作（空 insert、零长度 delete/retain，
// 含相消产生的零长度 retain），再把每个保留项与前一个保留项贪心合并。
// 合并若完全相消，则直接弹出前一项而不是留下 retain 产物——
// 否则产物挡在中间会让两侧在第二轮才合并，破坏幂等：
// Normalize(Normalize(ops)) == Normalize(ops)。
func Normalize(ops []Operation) []Operation {
	kept := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if dropInNormalize(op) {
			continue
		}
		if n := len(kept); n > 0 {
			if merged, ok := Compose(kept[n-1], op); ok {
				if dropInNormalize(merged) {
					kept = kept[:n-1]
				} else {
					kept[n-1] = merged
				}
				continue
			}
		}
		kept = append(kept, op)
	}
	return kept
}

// 零影响判定：正长度 retain 保留（它承载位置语义），零长度才丢。
func dropInNormalize(op Operation) bool {
	switch op.Type {
	case KindInsert:
		return op.Content == ""
	case KindDelete, KindRetain:
		return op.Length == 0
	}
	return false
}
