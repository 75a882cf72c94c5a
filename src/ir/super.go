package ir

// GatherSuper partitions a function's flat block list into its super-block
// tree: a BFS over the control-flow graph starting at `%entry`, where each
// `while_cond` block reached recurses into its own nested super-block (the
// loop body) before continuing past the loop's `while_next` successor (spec
// §4.2 "SuperBlockIR", §9 Design Notes). Blocks are removed from a local
// name-to-block map as they're assigned to a super-block; fn.Blocks itself
// is left unchanged.
func GatherSuper(fn *Function) {
	blockMap := make(map[string]*Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blockMap[b.Name] = b
	}
	fn.Super = getSuper(blockMap, "%entry", true)
}

// getSuper runs the BFS partition rooted at start. first is true only for a
// function's outermost call, permitting the (otherwise-skipped) function
// exit label to be gathered into the root super-block.
func getSuper(blockMap map[string]*Block, start string, first bool) *SuperBlock {
	permitNext := map[string]bool{}
	super := &SuperBlock{}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		switch {
		case len(cur) >= 17 && cur[7:17] == "while_next" && !permitNext[cur]:
			// A loop's continuation point belongs to the enclosing
			// super-block, not the loop body currently being gathered —
			// skip it here; the recursing caller re-enqueues it explicitly.
			continue

		case StartWith(cur, "%labelexit") && !first:
			continue

		case len(cur) >= 17 && cur[7:17] == "while_cond" && cur != start:
			// Entering a new loop: its whole body becomes one nested
			// super-block, and BFS resumes past it at `while_next`.
			nested := getSuper(blockMap, cur, false)
			super.Blocks = append(super.Blocks, nested)
			nextName := "%label_while_next_" + cur[18:]
			queue = append(queue, nextName)
			permitNext[nextName] = true

		default:
			block, ok := blockMap[cur]
			if !ok {
				continue
			}
			delete(blockMap, cur)

			last := block.Values[len(block.Values)-1]
			switch last.Op {
			case "jump":
				if last.Args[0] != start {
					queue = append(queue, last.Args[0])
				}
			case "br":
				queue = append(queue, last.Args[1], last.Args[2])
			}
			super.Blocks = append(super.Blocks, block)
		}
	}
	return super
}
