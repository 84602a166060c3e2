package jsonfile

import (
	"os"

	"github.com/collapsinghierarchy/repsync/store"
)

func SetWriterForTest(st store.Store, fn func(path string, data []byte, perm os.FileMode) error) {
	st.(*fileStore).write = fn
}
