package api

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
)

// guard pins an object to the goroutine that created it.
type guard struct {
	owner   int64
	enabled bool
}

func newGuard(enabled bool) guard {
	return guard{owner: goroutineID(), enabled: enabled}
}

func (g guard) check() error {
	if !g.enabled {
		return nil
	}
	if id := goroutineID(); id != g.owner {
		return NewError(ErrCodeProgramming, fmt.Sprintf(
			"SQLite objects created in a goroutine can only be used in that same goroutine. "+
				"The object was created in goroutine id %d and this is goroutine id %d", g.owner, id), nil)
	}
	return nil
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID reads the current goroutine id from the "goroutine N [...]"
// header of its stack trace. It returns -1 if the header cannot be parsed.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header, ok := bytes.CutPrefix(buf[:n], goroutinePrefix)
	if !ok {
		return -1
	}
	if i := bytes.IndexByte(header, ' '); i >= 0 {
		header = header[:i]
	}
	id, err := strconv.ParseInt(string(header), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
