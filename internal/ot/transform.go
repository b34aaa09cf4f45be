package ot

// Transform 推导 OT 菱形的下边：假设 b 已经基于同一基线先行提交，
// 把 a 改写成可以应用在 b 之后的 a'。
// 收敛性质：apply(apply(D,a), Transform(b,a)) == apply(apply(D,b), Transform(a,b))。
// 函数是全函数：九种类型组合全部覆盖，永不 panic。
func Transform(a, b Operation) Operation {
	switch a.Type {
	case KindInsert:
		switch b.Type {
		case KindInsert:
			return transformInsertInsert(a, b)
		case KindDelete:
			return transformInsertDelete(a, b)
		}
	case KindDelete:
		switch b.Type {
		case KindInsert:
			return transformDeleteInsert(a, b)
		case KindDelete:
			return transformDeleteDelete(a, b)
		}
	case KindRetain:
		switch b.Type {
		case KindInsert:
			return transformRetainInsert(a, b)
		case KindDelete:
			return transformRetainDelete(a, b)
		}
	}
	// b 是 retain（或未知类型）：内容不变，a 原样通过。
	return a
}

// TransformAll 把 op 依次对一串并发操作做左折叠。
// 折叠顺序即日志顺序：每一步的输出是下一步的输入。
func TransformAll(op Operation, ops []Operation) Operation {
	for _, b := range ops {
		op = Transform(op, b)
	}
	return op
}

// 同位置 insert 的平局判定必须是两个操作的纯对称函数：
// 内容字典序小的一方保持原位，大的一方右移。
// 两侧内容相同时无需移位——两种应用顺序得到同一字符串。
// 客户端与服务端交换实参顺序调用也不会破坏收敛。
func transformInsertInsert(a, b Operation) Operation {
	shift := b.Position < a.Position ||
		(b.Position == a.Position && b.Content < a.Content)
	if shift {
		a.Position += b.ContentLen()
	}
	return a
}

func transformInsertDelete(a, b Operation) Operation {
	switch {
	case a.Position <= b.Position:
		// 插入点在删除区间之前，不受影响。
	case a.Position >= b.End():
		a.Position -= b.Length
	default:
		// 插入点落在被删文本内部：插入退化为零长度 retain，
		// 对侧的 delete 会扩长并把该插入一并删除（见 transformDeleteInsert）。
		// 若让插入存活，单操作模型下两个应用顺序无法收敛到同一字符串。
		return Operation{Type: KindRetain, Position: b.Position, Length: 0}
	}
	return a
}

func transformDeleteInsert(a, b Operation) Operation {
	switch {
	case b.Position <= a.Position:
		a.Position += b.ContentLen()
	case b.Position >= a.End():
		// 插入在删除区间之后，不受影响。
	default:
		// b 插进了 a 的删除范围：扩长 a，把新插入的文本一并删掉。
		a.Length += b.ContentLen()
	}
	return a
}

func transformDeleteDelete(a, b Operation) Operation {
	overlap := overlapLen(a.Position, a.End(), b.Position, b.End())
	if overlap == 0 {
		if b.Position < a.Position {
			a.Position -= b.Length
		}
		return a
	}
	if overlap == a.Length {
		// a 完全被 b 覆盖，退化为零长度 retain（内部产物，见 Validate 注释）。
		return Operation{Type: KindRetain, Position: min(a.Position, b.Position), Length: 0}
	}
	if b.Position <= a.Position {
		a.Position = b.Position
	}
	a.Length -= overlap
	return a
}

// retain 的位置位移与 insert 在同一 b 下的位移一致；
// 长度不受 insert 影响，被重叠的 delete 截断。
func transformRetainInsert(a, b Operation) Operation {
	if b.Position < a.Position {
		a.Position += b.ContentLen()
	}
	return a
}

func transformRetainDelete(a, b Operation) Operation {
	overlap := overlapLen(a.Position, a.End(), b.Position, b.End())
	pos := a.Position
	switch {
	case pos <= b.Position:
	case pos >= b.End():
		pos -= b.Length
	default:
		pos = b.Position
	}
	a.Position = pos
	a.Length -= overlap
	return a
}

func overlapLen(aStart, aEnd, bStart, bEnd int) int {
	return max(0, min(aEnd, bEnd)-max(aStart, bStart))
}
