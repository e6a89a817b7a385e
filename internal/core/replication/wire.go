package replication

import (
	"bufio"
	"fmt"
	"io"

	"github.com/dep2p/go-multicore/pkg/types"
	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================================
//                              帧格式
// ============================================================================
//
//	uvarint(len) | type (1 byte) | body (protobuf wire format)
//
// len 覆盖 type 与 body。

// MaxFrameSize 单帧上限
const MaxFrameSize = 8 << 20

// MessageType 消息类型
type MessageType byte

const (
	TypeHandshake MessageType = iota
	TypeFeed
	TypeHave
	TypeRequest
	TypeData
)

func (t MessageType) String() string {
	switch t {
	case TypeHandshake:
		return "handshake"
	case TypeFeed:
		return "feed"
	case TypeHave:
		return "have"
	case TypeRequest:
		return "request"
	case TypeData:
		return "data"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Message 复制协议消息
type Message interface {
	Type() MessageType
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

// Handshake 会话首帧
type Handshake struct {
	ID       []byte
	UserData []byte
}

// Feed 声明本端持有某个 feed
type Feed struct {
	DiscoveryKey types.DiscoveryKey
	// Key 可选，对端只知道发现密钥时借此补齐公钥
	Key []byte
}

// Have 通告本端长度
type Have struct {
	DiscoveryKey types.DiscoveryKey
	Length       uint64
}

// Request 请求 [Start, End) 区间的条目
type Request struct {
	DiscoveryKey types.DiscoveryKey
	Start        uint64
	End          uint64
}

// Data 单个条目
type Data struct {
	DiscoveryKey types.DiscoveryKey
	Index        uint64
	Value        []byte
	Signature    []byte
}

func (*Handshake) Type() MessageType { return TypeHandshake }
func (*Feed) Type() MessageType      { return TypeFeed }
func (*Have) Type() MessageType      { return TypeHave }
func (*Request) Type() MessageType   { return TypeRequest }
func (*Data) Type() MessageType      { return TypeData }

// ============================================================================
//                              编码
// ============================================================================

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func (m *Handshake) marshal(b []byte) []byte {
	b = appendBytes(b, 1, m.ID)
	return appendBytes(b, 2, m.UserData)
}

func (m *Feed) marshal(b []byte) []byte {
	b = appendBytes(b, 1, m.DiscoveryKey[:])
	return appendBytes(b, 2, m.Key)
}

func (m *Have) marshal(b []byte) []byte {
	b = appendBytes(b, 1, m.DiscoveryKey[:])
	return appendVarint(b, 2, m.Length)
}

func (m *Request) marshal(b []byte) []byte {
	b = appendBytes(b, 1, m.DiscoveryKey[:])
	b = appendVarint(b, 2, m.Start)
	return appendVarint(b, 3, m.End)
}

func (m *Data) marshal(b []byte) []byte {
	b = appendBytes(b, 1, m.DiscoveryKey[:])
	b = appendVarint(b, 2, m.Index)
	b = appendBytes(b, 3, m.Value)
	return appendBytes(b, 4, m.Signature)
}

// Encode 编码为完整的帧
func Encode(m Message) []byte {
	body := m.marshal([]byte{byte(m.Type())})
	frame := varint.ToUvarint(uint64(len(body)))
	return append(frame, body...)
}

// ============================================================================
//                              解码
// ============================================================================

// fieldFunc 处理单个字段，返回消耗的字节数（负数为错误码）
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) int

func consumeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m := fn(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func bytesField(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return -1
	}
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte(nil), v...)
	}
	return n
}

func varintField(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return -1
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

func dkField(typ protowire.Type, b []byte, dst *types.DiscoveryKey) int {
	var raw []byte
	n := bytesField(typ, b, &raw)
	if n < 0 {
		return n
	}
	dk, err := types.DiscoveryKeyFromBytes(raw)
	if err != nil {
		return -1
	}
	*dst = dk
	return n
}

func (m *Handshake) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return bytesField(typ, b, &m.ID)
		case 2:
			return bytesField(typ, b, &m.UserData)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

func (m *Feed) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return dkField(typ, b, &m.DiscoveryKey)
		case 2:
			return bytesField(typ, b, &m.Key)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

func (m *Have) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return dkField(typ, b, &m.DiscoveryKey)
		case 2:
			return varintField(typ, b, &m.Length)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

func (m *Request) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return dkField(typ, b, &m.DiscoveryKey)
		case 2:
			return varintField(typ, b, &m.Start)
		case 3:
			return varintField(typ, b, &m.End)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

func (m *Data) unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return dkField(typ, b, &m.DiscoveryKey)
		case 2:
			return varintField(typ, b, &m.Index)
		case 3:
			return bytesField(typ, b, &m.Value)
		case 4:
			return bytesField(typ, b, &m.Signature)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
}

func newMessage(t MessageType) (Message, error) {
	switch t {
	case TypeHandshake:
		return &Handshake{}, nil
	case TypeFeed:
		return &Feed{}, nil
	case TypeHave:
		return &Have{}, nil
	case TypeRequest:
		return &Request{}, nil
	case TypeData:
		return &Data{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, byte(t))
	}
}

// Decoder 从字节流中读取帧
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder 创建解码器
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next 读取下一条消息
func (d *Decoder) Next() (Message, error) {
	size, err := varint.ReadUvarint(d.r)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrProtocol)
	}
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	msg, err := newMessage(MessageType(buf[0]))
	if err != nil {
		return nil, err
	}
	if err := msg.unmarshal(buf[1:]); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.Type(), err)
	}
	return msg, nil
}
