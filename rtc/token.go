// Package rtc issues join credentials for the live-session media provider. Tokens use the
// provider's AccessToken "006" layout: the app id in clear followed by a base64 body that
// carries an HMAC-SHA256 signature, the CRC32 of the room and of the participant, and the
// signed privilege message.
package rtc

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sort"
	"strings"
	"time"
)

type Role int

const (
	RolePublisher  Role = 1
	RoleSubscriber Role = 2
)

func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleSubscriber:
		return "subscriber"
	default:
		return "unknown"
	}
}

const (
	privJoinChannel  uint16 = 1
	privPublishAudio uint16 = 2
	privPublishVideo uint16 = 3
	privPublishData  uint16 = 4
)

const (
	DefaultTTL = 3600 * time.Second

	tokenVersion      = "006"
	placeholderPrefix = "placeholder:"
)

var (
	ErrMalformedToken = errors.New("rtc: malformed token")
	ErrBadSignature   = errors.New("rtc: token signature mismatch")
	ErrNotConfigured  = errors.New("rtc: issuer has no app credentials")
)

type Config struct {
	AppID          string
	AppCertificate string
	TTL            time.Duration
}

type Credential struct {
	Token         string    `json:"token"`
	RoomID        string    `json:"room_id"`
	ParticipantID string    `json:"participant_id"`
	Role          Role      `json:"role"`
	ExpiresAt     time.Time `json:"expires_at"`
	Placeholder   bool      `json:"placeholder"`
}

type Issuer struct {
	cfg  Config
	now  func() time.Time
	salt func() uint32
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func NewIssuer(cfg Config, opts ...Option) *Issuer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	i := &Issuer{cfg: cfg, now: time.Now, salt: randomSalt}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Enabled reports whether real signed tokens are produced.
func (i *Issuer) Enabled() bool {
	return i.cfg.AppID != "" && i.cfg.AppCertificate != ""
}

// Issue signs a credential for participantID in roomID. A zero ttl uses the configured
// default. Without app credentials a placeholder credential is returned so local
// environments keep working.
func (i *Issuer) Issue(roomID, participantID string, role Role, ttl time.Duration) (Credential, error) {
	if roomID == "" || participantID == "" {
		return Credential{}, fmt.Errorf("rtc: room and participant are required")
	}
	if role != RolePublisher && role != RoleSubscriber {
		return Credential{}, fmt.Errorf("rtc: unknown role %d", role)
	}
	if ttl <= 0 {
		ttl = i.cfg.TTL
	}

	now := i.now()
	expiresAt := now.Add(ttl).Truncate(time.Second)
	cred := Credential{
		RoomID:        roomID,
		ParticipantID: participantID,
		Role:          role,
		ExpiresAt:     expiresAt,
	}

	if !i.Enabled() {
		cred.Token = placeholderPrefix + roomID + ":" + participantID
		cred.Placeholder = true
		return cred, nil
	}

	expire := uint32(expiresAt.Unix())
	privileges := map[uint16]uint32{privJoinChannel: expire}
	if role == RolePublisher {
		privileges[privPublishAudio] = expire
		privileges[privPublishVideo] = expire
		privileges[privPublishData] = expire
	}

	msg := message{salt: i.salt(), ts: expire, privileges: privileges}
	cred.Token = i.build(roomID, participantID, msg)
	return cred, nil
}

// Verify decodes token, checks it was signed for roomID and participantID with this
// issuer's certificate, and returns the granted role and expiry.
func (i *Issuer) Verify(token, roomID, participantID string) (Role, time.Time, error) {
	if !i.Enabled() {
		return 0, time.Time{}, ErrNotConfigured
	}
	prefix := tokenVersion + i.cfg.AppID
	if !strings.HasPrefix(token, prefix) {
		return 0, time.Time{}, ErrMalformedToken
	}
	raw, err := base64.StdEncoding.DecodeString(token[len(prefix):])
	if err != nil {
		return 0, time.Time{}, ErrMalformedToken
	}

	r := bytes.NewReader(raw)
	signature, err := readBytes(r)
	if err != nil {
		return 0, time.Time{}, ErrMalformedToken
	}
	var crcRoom, crcParticipant uint32
	if err := binary.Read(r, binary.LittleEndian, &crcRoom); err != nil {
		return 0, time.Time{}, ErrMalformedToken
	}
	if err := binary.Read(r, binary.LittleEndian, &crcParticipant); err != nil {
		return 0, time.Time{}, ErrMalformedToken
	}
	rawMsg, err := readBytes(r)
	if err != nil {
		return 0, time.Time{}, ErrMalformedToken
	}

	if crcRoom != crc32.ChecksumIEEE([]byte(roomID)) || crcParticipant != crc32.ChecksumIEEE([]byte(participantID)) {
		return 0, time.Time{}, ErrBadSignature
	}
	if !hmac.Equal(signature, i.sign(roomID, participantID, rawMsg)) {
		return 0, time.Time{}, ErrBadSignature
	}

	msg, err := unpackMessage(rawMsg)
	if err != nil {
		return 0, time.Time{}, ErrMalformedToken
	}
	join, ok := msg.privileges[privJoinChannel]
	if !ok {
		return 0, time.Time{}, ErrMalformedToken
	}
	role := RoleSubscriber
	if _, ok := msg.privileges[privPublishAudio]; ok {
		role = RolePublisher
	}
	return role, time.Unix(int64(join), 0), nil
}

func (i *Issuer) build(roomID, participantID string, msg message) string {
	rawMsg := msg.pack()
	signature := i.sign(roomID, participantID, rawMsg)

	var buf bytes.Buffer
	writeBytes(&buf, signature)
	_ = binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE([]byte(roomID)))
	_ = binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE([]byte(participantID)))
	writeBytes(&buf, rawMsg)

	return tokenVersion + i.cfg.AppID + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func (i *Issuer) sign(roomID, participantID string, rawMsg []byte) []byte {
	mac := hmac.New(sha256.New, []byte(i.cfg.AppCertificate))
	mac.Write([]byte(i.cfg.AppID))
	mac.Write([]byte(roomID))
	mac.Write([]byte(participantID))
	mac.Write(rawMsg)
	return mac.Sum(nil)
}

type message struct {
	salt       uint32
	ts         uint32
	privileges map[uint16]uint32
}

func (m message) pack() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, m.salt)
	_ = binary.Write(&buf, binary.LittleEndian, m.ts)

	keys := make([]int, 0, len(m.privileges))
	for k := range m.privileges {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)

	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(keys)))
	for _, k := range keys {
		_ = binary.Write(&buf, binary.LittleEndian, uint16(k))
		_ = binary.Write(&buf, binary.LittleEndian, m.privileges[uint16(k)])
	}
	return buf.Bytes()
}

func unpackMessage(raw []byte) (message, error) {
	r := bytes.NewReader(raw)
	m := message{privileges: make(map[uint16]uint32)}
	if err := binary.Read(r, binary.LittleEndian, &m.salt); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.ts); err != nil {
		return m, err
	}
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return m, err
	}
	for j := 0; j < int(n); j++ {
		var key uint16
		var val uint32
		if err := binary.Read(r, binary.LittleEndian, &key); err != nil {
			return m, err
		}
		if err := binary.Read(r, binary.LittleEndian, &val); err != nil {
			return m, err
		}
		m.privileges[key] = val
	}
	return m, nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func randomSalt() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(b[:])
}
