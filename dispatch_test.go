package etherdfs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/etherdfs/etherdfs-go/internal/testserver"
	"github.com/etherdfs/etherdfs-go/link"
)

// newTestEngine wires an Engine to an in-memory testserver.Server over a
// paired link.Loopback, and starts a background goroutine draining the
// server's inbox so the engine's synchronous Request calls get replies.
func newTestEngine(t *testing.T, local, remote MAC, checksumEnabled bool) (*Engine, *testserver.Server, func()) {
	t.Helper()

	clientDriver := link.NewLoopback()
	serverDriver := link.NewLoopback()
	link.Pair(clientDriver, serverDriver)

	srv := testserver.New(remote, serverDriver)
	eng := NewEngine(clientDriver, local, checksumEnabled, nil)
	eng.SetPeerMAC(remote)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !srv.ServeOne() {
				time.Sleep(100 * time.Microsecond)
			}
		}
	}()

	return eng, srv, func() { close(stop) }
}

func TestEndToEndOpenReadClose(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, srv, stop := newTestEngine(t, local, remote, true)
	defer stop()

	require.NoError(t, eng.Mapping.Map(2, 0)) // C: -> remote A:
	srv.PutFile("HELLO.TXT", []byte("hello, etherdfs"), 0x20)

	var f OpenFile
	require.NoError(t, eng.Open(2, OpenKindOpen, 0, 0, 0, "HELLO.TXT", &f))
	require.Equal(t, uint32(len("hello, etherdfs")), f.FileSize)

	buf := make([]byte, 32)
	n, err := eng.ReadFil(&f, buf)
	require.NoError(t, err)
	require.Equal(t, "hello, etherdfs", string(buf[:n]))
	require.Equal(t, uint32(n), f.FilePos)

	require.NoError(t, eng.ClsFil(&f))
}

func TestWriteFilZeroByteTruncates(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, srv, stop := newTestEngine(t, local, remote, false)
	defer stop()

	require.NoError(t, eng.Mapping.Map(2, 0))
	srv.PutFile("GROW.DAT", []byte("0123456789"), 0)

	var f OpenFile
	require.NoError(t, eng.Open(2, OpenKindOpen, 0, 0, OpenModeReadWrite, "GROW.DAT", &f))

	f.FilePos = 3
	n, err := eng.WriteFil(&f, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, uint32(3), f.FileSize)
}

func TestWriteFilGrowsFile(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, srv, stop := newTestEngine(t, local, remote, false)
	defer stop()

	require.NoError(t, eng.Mapping.Map(2, 0))
	srv.PutFile("NEW.DAT", nil, 0)

	var f OpenFile
	require.NoError(t, eng.Open(2, OpenKindOpen, 0, 0, OpenModeReadWrite, "NEW.DAT", &f))

	payload := []byte("appended bytes")
	n, err := eng.WriteFil(&f, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, uint32(len(payload)), f.FileSize)
	require.Equal(t, uint32(len(payload)), f.FilePos)
}

func TestDispatchNotMappedReturnsErrNotOurs(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()

	err := eng.Mkdir(5, "\\SOMEDIR")
	require.ErrorIs(t, err, ErrNotOurs)
}

func TestRmdirRejectsCurrentDirectoryLocally(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()

	require.NoError(t, eng.Mapping.Map(2, 0))
	err := eng.Rmdir(2, "\\CURRENT", true)
	require.ErrorIs(t, err, ErrCurrentDirectory)
}

func TestRenameRejectsCrossDrive(t *testing.T) {
	err := (&Engine{Mapping: NewMappingTable()}).Rename(`C:\A.TXT`, `D:\B.TXT`)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestRenameRejectsWildcard(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()
	require.NoError(t, eng.Mapping.Map(2, 0))

	err := eng.Rename(`C:\A*.TXT`, `C:\B.TXT`)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestOpenRejectsWildcard(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()
	require.NoError(t, eng.Mapping.Map(2, 0))

	var f OpenFile
	err := eng.Open(2, OpenKindOpen, 0, 0, 0, "*.TXT", &f)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestSpOpenRejectsWildcard(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()
	require.NoError(t, eng.Mapping.Map(2, 0))

	var f OpenFile
	err := eng.Open(2, OpenKindSpOpen, 0, 0, OpenModeReadWrite, "*.TXT", &f)
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestUnknown2DReturnsFileNotFoundWithoutWireTraffic(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()
	require.NoError(t, eng.Mapping.Map(2, 0))

	f := OpenFile{DevInfo: 2}
	err := eng.Unknown2D(&f)
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestUnknown2DNotMappedReturnsErrNotOurs(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, _, stop := newTestEngine(t, local, remote, false)
	defer stop()

	f := OpenFile{DevInfo: 5}
	err := eng.Unknown2D(&f)
	require.ErrorIs(t, err, ErrNotOurs)
}

func TestDeleteRoundTrip(t *testing.T) {
	local := MAC{1, 1, 1, 1, 1, 1}
	remote := MAC{2, 2, 2, 2, 2, 2}
	eng, srv, stop := newTestEngine(t, local, remote, false)
	defer stop()
	require.NoError(t, eng.Mapping.Map(2, 0))
	srv.PutFile("GONE.TXT", []byte("x"), 0)

	require.NoError(t, eng.Delete(2, "GONE.TXT"))
}
