package sim

import (
	"context"
	"sync"
	"time"

	"simscan/internal/devices"
	"simscan/internal/storage"
)

const (
	replyReady   = "\r\n+CPIN: READY\r\n\r\nOK\r\n"
	replySIMPIN  = "\r\n+CPIN: SIM PIN\r\n\r\nOK\r\n"
	replyICCID   = "\r\n+CRSM: 144,0,\"98106230214365870921\"\r\n\r\nOK\r\n"
	replyOK      = "\r\nOK\r\n"
	replyError   = "\r\nERROR\r\n"
	knownICCID   = int64(1234567890)
	cmdEnterPIN  = "AT+CPIN=\"1234\"\r"
	cmdLockOff   = "AT+CLCK=\"SC\",0,\"1234\"\r"
	cmdPINStatus = "AT+CPIN?\r"
)

type call struct {
	port    string
	command string
	timeout time.Duration
}

// fakeModem replies to commands from a fixed script. Unscripted commands
// get no reply. A silent modem never answers and holds every exchange for
// its full timeout, like a hung module.
type fakeModem struct {
	replies map[string]string
	delay   time.Duration
	silent  bool
}

type fakeTransport struct {
	mu       sync.Mutex
	modems   map[string]*fakeModem
	calls    []call
	finished map[string]time.Time
}

func newFakeTransport(modems map[string]*fakeModem) *fakeTransport {
	return &fakeTransport{modems: modems, finished: make(map[string]time.Time)}
}

func (f *fakeTransport) Transact(ctx context.Context, port string, command []byte, timeout time.Duration) []byte {
	f.mu.Lock()
	f.calls = append(f.calls, call{port: port, command: string(command), timeout: timeout})
	m := f.modems[port]
	f.mu.Unlock()

	defer f.markFinished(port)

	if m == nil {
		return nil
	}
	if m.silent {
		select {
		case <-time.After(timeout):
		case <-ctx.Done():
		}
		return nil
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil
		}
	}
	reply, ok := m.replies[string(command)]
	if !ok {
		return nil
	}
	return []byte(reply)
}

func (f *fakeTransport) markFinished(port string) {
	f.mu.Lock()
	f.finished[port] = time.Now()
	f.mu.Unlock()
}

// lastExchange returns when the last exchange on port completed.
func (f *fakeTransport) lastExchange(port string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished[port]
}

func (f *fakeTransport) callsTo(port string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.port == port {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) sent(port, command string) bool {
	for _, c := range f.callsTo(port) {
		if c.command == command {
			return true
		}
	}
	return false
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func readyModem() *fakeModem {
	return &fakeModem{replies: map[string]string{
		cmdPINStatus:                 replyReady,
		"AT+CPMS=\"SM\"\r":           "\r\n+CPMS: \"SM\",1,50,\"SM\",1,50,\"SM\",1,50\r\n\r\nOK\r\n",
		"AT+CIMI\r":                  "\r\n250011234567890\r\n\r\nOK\r\n",
		"AT+CMGF=1\r":                replyOK,
		"AT+CMGL=\"ALL\"\r":          "\r\n+CMGL: 1,\"REC READ\",\"+79990001122\",,\"24/01/02,10:00:00+12\"\r\n00480069\r\n\r\nOK\r\n",
		"AT+CUSD=1,\"*99#\"\r":       "\r\nOK\r\n\r\n+CUSD: 0,\"79991234567\",15\r\n",
		"AT+CPBS=\"ON\"\r":           "\r\nOK\r\n\r\n+CUSD: 0,\"MSISDN: 79991234567\",15\r\n",
		"AT+COPS?\r":                 "\r\n+COPS: 0,0,\"MTS RUS\",7\r\n\r\nOK\r\n",
		"AT+CRSM=176,12258,0,0,10\r": replyICCID,
		"AT+CMGD=1,4\r":              replyOK,
	}}
}

// lockedModem asks for its PIN and accepts "1234". lockReply is the answer
// to the lock disable command.
func lockedModem(lockReply string) *fakeModem {
	m := readyModem()
	m.replies[cmdPINStatus] = replySIMPIN
	m.replies[cmdEnterPIN] = replyOK
	if lockReply != "" {
		m.replies[cmdLockOff] = lockReply
	}
	return m
}

type stubLister struct {
	ports []devices.PortInfo
	err   error
}

func (s stubLister) ListPorts() ([]devices.PortInfo, error) {
	return s.ports, s.err
}

func portList(names ...string) stubLister {
	ports := make([]devices.PortInfo, len(names))
	for i, n := range names {
		ports[i] = devices.PortInfo{Name: n}
	}
	return stubLister{ports: ports}
}

type stubStore struct {
	creds storage.Credentials
	err   error
	calls int
}

func (s *stubStore) AllCredentials(ctx context.Context) (storage.Credentials, error) {
	s.calls++
	return s.creds, s.err
}

func fixedScanner(tx Transactor) *Scanner {
	s := NewScanner(tx, DefaultTimeouts())
	s.now = func() time.Time { return time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local) }
	return s
}
