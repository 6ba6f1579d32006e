//go:build !windows

package filesync

import (
	"os"
	"syscall"

	"github.com/tonistiigi/fsutil/types"
)

func statOwner(fi os.FileInfo, stat *types.Stat) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		stat.Uid = st.Uid
		stat.Gid = st.Gid
	}
}
