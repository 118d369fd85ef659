package packager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antonholmquist/jason"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/depositor/util"
)

func TestPackageRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	bag := filepath.Join(tmp, "bag-1")
	os.MkdirAll(bag, 0755)
	os.WriteFile(filepath.Join(bag, "report.txt"), []byte("quarterly numbers\n"), 0644)

	pk := New(util.SHA256)
	require.NoError(t, pk.CreateBag(bag))

	types, err := pk.DetectTypes(bag)
	require.NoError(t, err)
	obj, err := jason.NewObjectFromBytes([]byte(types))
	require.NoError(t, err)
	mime, err := obj.GetString("report.txt")
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", mime)

	require.NoError(t, pk.AddMetadata(bag, `{"d":1}`, `{"v":1}`, types, "ext"))
	ok, err := pk.ValidateBag(bag)
	require.NoError(t, err)
	require.True(t, ok)

	meta := filepath.Join(tmp, "meta", "bag-1")
	require.NoError(t, pk.ExtractMetadata(bag, meta))
	_, err = os.Stat(filepath.Join(meta, "metadata", "deposit.json"))
	require.NoError(t, err)

	tarName := filepath.Join(tmp, "bag-1.tar")
	require.NoError(t, pk.CreateTar(bag, tarName))
	value, alg, err := pk.Digest(tarName)
	require.NoError(t, err)
	require.Equal(t, "SHA-256", alg)
	require.Len(t, value, 64)

	dir, err := pk.Untar(tarName, filepath.Join(tmp, "verify"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "verify", "bag-1"), dir)
	ok, err = pk.ValidateBag(dir)
	require.NoError(t, err)
	require.True(t, ok)

	// damage the payload
	os.WriteFile(filepath.Join(dir, "data", "report.txt"), []byte("changed"), 0644)
	ok, err = pk.ValidateBag(dir)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDefaultDigest(t *testing.T) {
	f := filepath.Join(t.TempDir(), "abc")
	os.WriteFile(f, []byte("abc"), 0644)
	var pk Default
	value, alg, err := pk.Digest(f)
	require.NoError(t, err)
	require.Equal(t, "SHA-1", alg)
	require.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", value)
}
