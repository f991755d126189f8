package rf

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// Modulation schemes the test transmitter accepts. The control plane only
// forwards these; waveform correctness is the instrument's business.
const (
	ModNone = "none"
	ModAM   = "am"
	ModFM   = "fm"
)

const (
	scpiTimeout = 2 * time.Second
	scpiPort    = ":5025" // raw-socket SCPI
)

// Transmitter drives a bench signal generator over a raw SCPI socket. It
// is the parameter sink for the test-transmitter settings exposed by the
// pipeline API.
type Transmitter struct {
	address string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	stateMu   sync.RWMutex
	connected bool
	identity  string
	freqHz    float64
	powerDBm  float64
	output    bool
	scheme    string
	carrierHz float64
}

// TxState is the reportable transmitter state.
type TxState struct {
	Connected   bool    `json:"connected"`
	Identity    string  `json:"identity,omitempty"`
	FrequencyHz float64 `json:"frequency_hz"`
	PowerDBm    float64 `json:"power_dbm"`
	Output      bool    `json:"output"`
	Modulation  string  `json:"modulation"`
	CarrierHz   float64 `json:"carrier_hz"`
}

// NewTransmitter points at a generator by host or host:port. The default
// SCPI raw-socket port is appended when missing.
func NewTransmitter(address string) *Transmitter {
	if address != "" && !strings.Contains(address, ":") {
		address += scpiPort
	}
	return &Transmitter{
		address: address,
		scheme:  ModNone,
	}
}

// Connect dials the instrument and reads its identity.
func (t *Transmitter) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		t.conn.Close()
	}

	conn, err := net.DialTimeout("tcp", t.address, scpiTimeout)
	if err != nil {
		t.setConnected(false, "")
		return fmt.Errorf("connect to generator at %s: %w", t.address, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)

	identity, err := t.queryLocked("*IDN?")
	if err != nil {
		conn.Close()
		t.conn = nil
		t.setConnected(false, "")
		return fmt.Errorf("identify generator: %w", err)
	}

	t.setConnected(true, strings.TrimSpace(identity))
	log.Printf("Transmitter connected: %s", strings.TrimSpace(identity))
	return nil
}

// Disconnect closes the instrument connection.
func (t *Transmitter) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.setConnected(false, "")
}

func (t *Transmitter) setConnected(up bool, identity string) {
	t.stateMu.Lock()
	t.connected = up
	if identity != "" {
		t.identity = identity
	}
	t.stateMu.Unlock()
}

// writeLocked sends a command; caller holds t.mu.
func (t *Transmitter) writeLocked(cmd string) error {
	if t.conn == nil {
		return fmt.Errorf("generator not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(scpiTimeout))
	_, err := t.conn.Write([]byte(cmd + "\n"))
	return err
}

// queryLocked sends a query and reads one response line; caller holds t.mu.
func (t *Transmitter) queryLocked(cmd string) (string, error) {
	if err := t.writeLocked(cmd); err != nil {
		return "", err
	}
	t.conn.SetReadDeadline(time.Now().Add(scpiTimeout))
	return t.reader.ReadString('\n')
}

// SetFrequency programs the carrier frequency.
func (t *Transmitter) SetFrequency(hz float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writeLocked(fmt.Sprintf("FREQ %.3f", hz)); err != nil {
		return fmt.Errorf("set frequency: %w", err)
	}
	t.stateMu.Lock()
	t.freqHz = hz
	t.stateMu.Unlock()
	return nil
}

// SetPower programs the output level in dBm.
func (t *Transmitter) SetPower(dbm float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writeLocked(fmt.Sprintf("POW %.2f DBM", dbm)); err != nil {
		return fmt.Errorf("set power: %w", err)
	}
	t.stateMu.Lock()
	t.powerDBm = dbm
	t.stateMu.Unlock()
	return nil
}

// SetModulation selects the modulation scheme and its carrier.
func (t *Transmitter) SetModulation(scheme string, carrierHz float64) error {
	scheme = strings.ToLower(scheme)
	switch scheme {
	case ModNone, ModAM, ModFM:
	default:
		return fmt.Errorf("unknown modulation scheme %q", scheme)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var cmds []string
	switch scheme {
	case ModNone:
		cmds = []string{"AM:STAT OFF", "FM:STAT OFF"}
	case ModAM:
		cmds = []string{fmt.Sprintf("AM:INT:FREQ %.3f", carrierHz), "AM:STAT ON", "FM:STAT OFF"}
	case ModFM:
		cmds = []string{fmt.Sprintf("FM:INT:FREQ %.3f", carrierHz), "FM:STAT ON", "AM:STAT OFF"}
	}
	for _, cmd := range cmds {
		if err := t.writeLocked(cmd); err != nil {
			return fmt.Errorf("set modulation: %w", err)
		}
	}

	t.stateMu.Lock()
	t.scheme = scheme
	t.carrierHz = carrierHz
	t.stateMu.Unlock()
	return nil
}

// EnableOutput switches the RF output on or off.
func (t *Transmitter) EnableOutput(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cmd := "OUTP OFF"
	if on {
		cmd = "OUTP ON"
	}
	if err := t.writeLocked(cmd); err != nil {
		return fmt.Errorf("set output: %w", err)
	}
	t.stateMu.Lock()
	t.output = on
	t.stateMu.Unlock()
	return nil
}

// State snapshots the cached transmitter settings.
func (t *Transmitter) State() TxState {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return TxState{
		Connected:   t.connected,
		Identity:    t.identity,
		FrequencyHz: t.freqHz,
		PowerDBm:    t.powerDBm,
		Output:      t.output,
		Modulation:  t.scheme,
		CarrierHz:   t.carrierHz,
	}
}
