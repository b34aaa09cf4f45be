package ot

// DefaultDiffWindow 是失配后重同步探测的默认窗口（rune 数）。
// 窗口越大对大段单次编辑越友好，但最坏情况代价按窗口平方增长，
// 所以必须可配置，不能写死（见 config.Collab.DiffWindow）。
const DefaultDiffWindow = 32

// Diff 用默认窗口对比两份快照，产出从 oldDoc 变换到 newDoc 的操作序列。
func Diff(oldDoc, newDoc string) []Operation {
	return DiffWindow(oldDoc, newDoc, DefaultDiffWindow)
}

// DiffWindow 是有界启发式 diff，不是最小编辑距离：
//  1. 双指针掐掉公共前缀/后缀；
//  2. 失配时在窗口内分别向前探测——newDoc 里找回到 oldDoc 当前字符的重同步点
//     （纯插入），oldDoc 里找回到 newDoc 当前字符的重同步点（纯删除）；
//  3. 两边都找不到就按 1 字符删除 + 1 字符插入（替换）推进。
//
// 产出的每个操作的 position 以“此前操作都已应用”的演进坐标计。
// 不变式：已产出的操作应用到 oldDoc 后，前 j 个 rune 与 newDoc 一致，
// 其余等于 oldRunes[i:]，因此对任意输入 apply(oldDoc, ops) == newDoc。
// 结果最后过一遍 Normalize。
func DiffWindow(oldDoc, newDoc string, window int) []Operation {
	if window <= 0 {
		window = DefaultDiffWindow
	}
	o, n := []rune(oldDoc), []rune(newDoc)

	// 先掐后缀再掐前缀：前后缀重叠时让给后缀，
	// 这样 "Hello world"→"Hello beautiful world" 产出 insert(5," beautiful")
	// 而不是等价的 insert(6,"beautiful ")。
	suffix := 0
	for suffix < len(o) && suffix < len(n) &&
		o[len(o)-1-suffix] == n[len(n)-1-suffix] {
		suffix++
	}
	prefix := 0
	for prefix < len(o)-suffix && prefix < len(n)-suffix && o[prefix] == n[prefix] {
		prefix++
	}
	oEnd, nEnd := len(o)-suffix, len(n)-suffix

	var ops []Operation
	i, j := prefix, prefix
	for i < oEnd || j < nEnd {
		switch {
		case i >= oEnd:
			// 旧文档耗尽，剩余全是插入。
			ops = append(ops, Operation{Type: KindInsert, Position: j, Content: string(n[j:nEnd])})
			j = nEnd

		case j >= nEnd:
			// 新文档耗尽，剩余全是删除。
			ops = append(ops, Operation{Type: KindDelete, Position: j, Length: oEnd - i})
			i = oEnd

		case o[i] == n[j]:
			i++
			j++

		default:
			insLen := resyncAhead(n, j, nEnd, o[i], window)
			delLen := resyncAhead(o, i, oEnd, n[j], window)
			switch {
			case delLen > 0 && (insLen == 0 || delLen <= insLen):
				ops = append(ops, Operation{Type: KindDelete, Position: j, Length: delLen})
				i += delLen
			case insLen > 0:
				ops = append(ops, Operation{Type: KindInsert, Position: j, Content: string(n[j : j+insLen])})
				j += insLen
			default:
				// 窗口内无法重同步：按替换处理，双指针各进一步。
				ops = append(ops,
					Operation{Type: KindDelete, Position: j, Length: 1},
					Operation{Type: KindInsert, Position: j, Content: string(n[j])})
				i++
				j++
			}
		}
	}
	return Normalize(ops)
}

// resyncAhead 在 r[from:end) 里向前最多 window 个 rune 找 target，
// 返回跳过的长度；找不到返回 0。r[from] 本身已知失配，从 from+1 起探。
func resyncAhead(r []rune, from, end int, target rune, window int) int {
	limit := min(end, from+window)
	for k := from + 1; k <= limit; k++ {
		if k < end && r[k] == target {
			return k - from
		}
	}
	return 0
}
