package command

import (
	"regexp"
	"strings"
)

// Block is an `exchange(symbol){actions}` unit found in a message.
type Block struct {
	Exchange string
	Symbol   string
	Actions  string
}

var blockHead = regexp.MustCompile(`([A-Za-z][A-Za-z0-9]*)\(([^()]*)\)\s*\{`)

// ExtractBlocks calls visit for every block of msg whose exchange, symbol and
// actions are non-empty after trimming. The exchange name is lower-cased.
// The action body may contain parentheses and nested braces; it ends at the
// brace matching the opening one.
func ExtractBlocks(msg string, visit func(exchange, symbol, actions string)) {
	scan(msg, func(_, _ int, exchange, symbol, actions string) {
		exchange = strings.ToLower(strings.TrimSpace(exchange))
		symbol = strings.TrimSpace(symbol)
		actions = strings.TrimSpace(actions)
		if exchange == "" || symbol == "" || actions == "" {
			return
		}
		visit(exchange, symbol, actions)
	})
}

// Blocks returns the blocks ExtractBlocks would visit.
func Blocks(msg string) []Block {
	var blocks []Block
	ExtractBlocks(msg, func(exchange, symbol, actions string) {
		blocks = append(blocks, Block{Exchange: exchange, Symbol: symbol, Actions: actions})
	})
	return blocks
}

// StripBlocks removes every substring matching the block grammar, including
// blocks that ExtractBlocks would skip because of empty fields.
func StripBlocks(msg string) string {
	var sb strings.Builder
	last := 0
	scan(msg, func(start, end int, _, _, _ string) {
		sb.WriteString(msg[last:start])
		last = end
	})
	sb.WriteString(msg[last:])
	return sb.String()
}

// scan walks msg left to right reporting the byte span and captures of every
// non-overlapping block.
func scan(msg string, fn func(start, end int, exchange, symbol, actions string)) {
	pos := 0
	for pos < len(msg) {
		loc := blockHead.FindStringSubmatchIndex(msg[pos:])
		if loc == nil {
			return
		}
		start, open := pos+loc[0], pos+loc[1]
		closing := matchingBrace(msg, open)
		if closing < 0 {
			// Unterminated body, keep looking after this head.
			pos = open
			continue
		}
		fn(start, closing+1,
			msg[pos+loc[2]:pos+loc[3]],
			msg[pos+loc[4]:pos+loc[5]],
			msg[open:closing])
		pos = closing + 1
	}
}

// matchingBrace returns the index of the '}' closing the brace opened right
// before from, or -1.
func matchingBrace(s string, from int) int {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
