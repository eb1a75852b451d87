package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dump renders the list structure for debugging, one entry per line in list
// order. An entry whose index mapping is broken is marked with '!' instead
// of panicking, so Dump stays usable when investigating corruption.
func (l *List[K, V]) Dump() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "list (%d entries)\n", len(l.index))
	i := 0
	for n := l.head.next; n != l.tail; n = n.next {
		marker := ' '
		if l.index[n.key] != n {
			marker = '!'
		}
		fmt.Fprintf(&buf, "%c%3d. %v = %s\n", marker, i, n.key, loggableVal(n.value))
		i++
	}
	return buf.String()
}

// Dump renders the feed structure for debugging.
func (f *Feed[K, M]) Dump() string {
	return f.list.Dump()
}

func loggableVal(v any) string {
	return string(must(json.Marshal(v)))
}
