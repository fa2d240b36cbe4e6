package writers

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
)

const bufSize = 64 * 1024

// writeAtomic streams fill into a temp file next to dest, fsyncs it and moves
// it into place. With overwrite off, an existing dest is left alone and
// (false, nil) is returned; where the filesystem allows, the check and the
// move are one call so a concurrent writer cannot be clobbered.
func writeAtomic(ctx context.Context, dest string, overwrite bool, fill func(io.Writer) error) (bool, error) {
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	bw := bufio.NewWriterSize(tmp, bufSize)
	if err := fill(writerWithCtx(ctx, bw)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return false, err
	}

	if overwrite {
		if err := osReplace(tmpPath, dest); err != nil {
			_ = os.Remove(tmpPath)
			return false, err
		}
	} else {
		saved, err := osCommitNew(tmpPath, dest)
		_ = os.Remove(tmpPath)
		if err != nil || !saved {
			return false, err
		}
	}
	_ = syncDir(dir)
	return true, nil
}

// writerWithCtx fails writes once ctx is done.
func writerWithCtx(ctx context.Context, w io.Writer) io.Writer {
	return ctxWriter{ctx: ctx, w: w}
}

type ctxWriter struct {
	ctx context.Context
	w   io.Writer
}

func (c ctxWriter) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.w.Write(p)
}
