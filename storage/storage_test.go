package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/store"
)

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry()
	root := t.TempDir()

	_, err := r.New("nope", nil)
	require.Equal(t, ErrUnknownBackend, errors.Cause(err))

	u, err := r.UserStore("org.datavaultplatform.common.storage.impl.LocalFileSystem", Options{"root": root})
	require.NoError(t, err)
	require.IsType(t, &Local{}, u)

	_, err = r.ArchiveStore("local", Options{})
	require.Equal(t, ErrMissingOption, errors.Cause(err))

	r.Register("panics", func(Options) (Device, error) { panic("no connection") })
	_, err = r.New("panics", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no connection")

	r.Register("device-only", func(Options) (Device, error) { return deviceOnly{}, nil })
	_, err = r.UserStore("device-only", nil)
	require.Equal(t, ErrNotUserStore, errors.Cause(err))
	_, err = r.ArchiveStore("device-only", nil)
	require.Equal(t, ErrNotArchiveStore, errors.Cause(err))

	require.Contains(t, r.Names(), "store")
}

type deviceOnly struct{}

func (deviceOnly) Retrieve(string, string, *progress.Progress) error { return nil }
func (deviceOnly) Store(string, string, *progress.Progress) (string, error) {
	return "", nil
}

func TestParseVerifyMethod(t *testing.T) {
	var table = []struct {
		input  string
		def    VerifyMethod
		output VerifyMethod
		err    error
	}{
		{"", CopyBack, CopyBack, nil},
		{"", LocalOnly, LocalOnly, nil},
		{"COPY_BACK", LocalOnly, CopyBack, nil},
		{"copy-back", LocalOnly, CopyBack, nil},
		{"local_only", CopyBack, LocalOnly, nil},
		{"sometimes", CopyBack, CopyBack, ErrBadVerifyMethod},
	}
	for _, tab := range table {
		v, err := ParseVerifyMethod(tab.input, tab.def)
		if v != tab.output || err != tab.err {
			t.Errorf("%q: got %s, %v, expected %s, %v", tab.input, v, err, tab.output, tab.err)
		}
	}
}

func TestLocal(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "user", "dir", "sub"), 0755)
	os.WriteFile(filepath.Join(root, "user", "file.txt"), []byte("0123456789"), 0644)
	os.WriteFile(filepath.Join(root, "user", "dir", "a"), []byte("abc"), 0644)
	os.WriteFile(filepath.Join(root, "user", "dir", "sub", "b"), []byte("defg"), 0644)

	l, err := NewLocal(Options{"root": root, "ratelimit": "1000000"})
	require.NoError(t, err)
	defer l.Close()

	require.True(t, l.Exists("user/file.txt"))
	require.True(t, l.Exists("/user/dir"))
	require.False(t, l.Exists("user/missing"))
	require.False(t, l.Exists("../etc/passwd"))
	require.Equal(t, "file.txt", l.Name("user/file.txt"))
	require.Equal(t, CopyBack, l.VerifyMethod())

	size, err := l.Size("user/dir")
	require.NoError(t, err)
	require.Equal(t, int64(7), size)

	dest := filepath.Join(t.TempDir(), "dir")
	var p progress.Progress
	require.NoError(t, l.Retrieve("user/dir", dest, &p))
	require.Equal(t, int64(7), p.Bytes())
	require.Equal(t, int64(2), p.Files())
	require.Equal(t, int64(2), p.Dirs())
	content, err := os.ReadFile(filepath.Join(dest, "sub", "b"))
	require.NoError(t, err)
	require.Equal(t, "defg", string(content))

	_, err = l.Size("../outside")
	require.Equal(t, ErrOutsideRoot, err)

	// store the file back into an archive directory
	os.MkdirAll(filepath.Join(root, "archive"), 0755)
	var p2 progress.Progress
	id, err := l.Store("archive", filepath.Join(root, "user", "file.txt"), &p2)
	require.NoError(t, err)
	require.Equal(t, "archive/file.txt", id)
	require.Equal(t, int64(10), p2.Bytes())

	// a second store of the same name does not overwrite
	_, err = l.Store("archive", filepath.Join(root, "user", "file.txt"), &p2)
	require.Error(t, err)
}

func TestStoreBackend(t *testing.T) {
	d, err := NewStoreBackend(Options{"location": "memory", "prefix": "deposits-"})
	require.NoError(t, err)
	sb := d.(*StoreBackend)
	require.Equal(t, CopyBack, sb.VerifyMethod())

	src := filepath.Join(t.TempDir(), "bag.tar")
	os.WriteFile(src, []byte("container bytes"), 0644)

	var p progress.Progress
	id, err := sb.Store("/", src, &p)
	require.NoError(t, err)
	require.Equal(t, ".tar", filepath.Ext(id))
	require.Equal(t, int64(15), p.Bytes())
	require.True(t, sb.Exists(id))

	size, err := sb.Size(id)
	require.NoError(t, err)
	require.Equal(t, int64(15), size)

	dest := filepath.Join(t.TempDir(), "back.tar")
	require.NoError(t, sb.Retrieve(id, dest, &progress.Progress{}))
	content, _ := os.ReadFile(dest)
	require.Equal(t, "container bytes", string(content))

	mem := sb.Underlying()
	require.NotNil(t, mem)
	_, err = store.NewWithPrefix(mem, "").Stat(id)
	require.NoError(t, err)

	err = sb.Retrieve("missing.tar", filepath.Join(t.TempDir(), "x"), &progress.Progress{})
	require.Equal(t, store.ErrNotExist, errors.Cause(err))
}

func TestSplitBucketPrefix(t *testing.T) {
	var table = []struct {
		location string
		addition string
		bucket   string
		prefix   string
	}{
		{"", "", "", ""},
		{"rel/path", "", "rel", "path/"},
		{"/abs/path/", "", "abs", "path/"},
		{"/bucket", "", "bucket", ""},
		{"/bucket", "more", "bucket", "more/"},
		{"/bucket/prefix/", "", "bucket", "prefix/"},
		{"/bucket/prefix", "more", "bucket", "prefix/more/"},
	}
	for _, row := range table {
		bucket, prefix := splitBucketPrefix(row.location, row.addition)
		if bucket != row.bucket {
			t.Error("expected bucket", row.bucket, "received", bucket)
		}
		if prefix != row.prefix {
			t.Error("expected prefix", row.prefix, "received", prefix)
		}
	}
}

func TestParseLocation(t *testing.T) {
	dir := t.TempDir()
	var table = []struct {
		location string
		verify   VerifyMethod
		bucket   string
		prefix   string
		err      error
	}{
		{"memory", CopyBack, "", "", nil},
		{dir, CopyBack, "", "", nil},
		{"file://" + filepath.ToSlash(dir), CopyBack, "", "", nil},
		{"s3:/bucket", LocalOnly, "bucket", "", nil},
		{"s3://localhost:9000/bucket/prefix/", LocalOnly, "bucket", "prefix/", nil},
		{"s3://localhost:9000/", LocalOnly, "", "", ErrBadLocation},
		{"ftp://host/x", CopyBack, "", "", ErrBadLocation},
		{"", CopyBack, "", "", ErrMissingOption},
	}
	for _, row := range table {
		d, err := NewStoreBackend(Options{"location": row.location, "access_key": "a", "secret_key": "b"})
		if errors.Cause(err) != row.err {
			t.Errorf("%s: got %v, expected %v", row.location, err, row.err)
			continue
		}
		if err != nil {
			continue
		}
		sb := d.(*StoreBackend)
		if sb.VerifyMethod() != row.verify {
			t.Errorf("%s: got %s, expected %s", row.location, sb.VerifyMethod(), row.verify)
		}
		if s3, ok := sb.Underlying().(*store.S3); ok {
			if s3.Bucket != row.bucket || s3.Prefix != row.prefix {
				t.Errorf("%s: got %s %s, expected %s %s", row.location, s3.Bucket, s3.Prefix, row.bucket, row.prefix)
			}
		} else if row.bucket != "" {
			t.Errorf("%s: expected an S3 store, got %T", row.location, sb.Underlying())
		}
	}
}
