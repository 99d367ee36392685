package storage

// matchPattern reports whether key matches a Redis-style glob pattern.
//
// Supported syntax:
//
//	*      any sequence of bytes, including none
//	?      exactly one byte
//	[abc]  one byte from the set, [^abc] negates, [a-z] is a range
//	\x     the literal byte x
func matchPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	return matchAutomaton(key, pattern, 0, 0, make(map[[2]int]bool))
}

// matchAutomaton implements recursive pattern matching with memoization
func matchAutomaton(str, pattern string, strIdx, patIdx int, memo map[[2]int]bool) bool {
	key := [2]int{strIdx, patIdx}
	if result, exists := memo[key]; exists {
		return result
	}

	var result bool
	switch {
	case patIdx == len(pattern):
		result = strIdx == len(str)

	case pattern[patIdx] == '*':
		result = matchAutomaton(str, pattern, strIdx, patIdx+1, memo) ||
			(strIdx < len(str) && matchAutomaton(str, pattern, strIdx+1, patIdx, memo))

	case strIdx == len(str):
		result = false

	case pattern[patIdx] == '?':
		result = matchAutomaton(str, pattern, strIdx+1, patIdx+1, memo)

	case pattern[patIdx] == '[':
		matched, next := matchClass(str[strIdx], pattern, patIdx+1)
		result = matched && matchAutomaton(str, pattern, strIdx+1, next, memo)

	case pattern[patIdx] == '\\' && patIdx+1 < len(pattern):
		result = pattern[patIdx+1] == str[strIdx] &&
			matchAutomaton(str, pattern, strIdx+1, patIdx+2, memo)

	default:
		result = pattern[patIdx] == str[strIdx] &&
			matchAutomaton(str, pattern, strIdx+1, patIdx+1, memo)
	}

	memo[key] = result
	return result
}

// matchClass matches c against the class starting at pattern[i], just
// after the opening bracket. It returns the index following the closing
// bracket; an unterminated class runs to the end of the pattern.
func matchClass(c byte, pattern string, i int) (bool, int) {
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}

	matched := false
	for i < len(pattern) && pattern[i] != ']' {
		switch {
		case pattern[i] == '\\' && i+1 < len(pattern):
			if pattern[i+1] == c {
				matched = true
			}
			i += 2
		case i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']':
			lo, hi := pattern[i], pattern[i+2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				matched = true
			}
			i += 3
		default:
			if pattern[i] == c {
				matched = true
			}
			i++
		}
	}
	if i < len(pattern) {
		i++ // closing bracket
	}

	return matched != negate, i
}
