package panel

// Vendor (Himax-style) extended command opcodes used by the LS054B3SX01.
const (
	opSetExtC       = 0xB9
	opSetGammaCurve = 0xE0
	opSetPower      = 0xB1
	opSetVRef       = 0xD2
	opSetGIP0       = 0xD3
	opSetGIP1       = 0xD5
	opSetGIP2       = 0xD6
	opSetGIP3       = 0xD8
	opSetDisp       = 0xB2
	opSetCyc        = 0xB4
	opSetMIPI       = 0xBA
)

// Burst is one atomic command write: opcode followed by its payload.
type Burst struct {
	Name  string
	Bytes []byte
}

func (b Burst) Opcode() byte    { return b.Bytes[0] }
func (b Burst) Payload() []byte { return b.Bytes[1:] }

func (b Burst) clone() Burst {
	return Burst{Name: b.Name, Bytes: append([]byte(nil), b.Bytes...)}
}

// The byte values are panel tuning data and must be sent verbatim, in order.
var vendorInit = [...]Burst{
	{"set_extc", []byte{opSetExtC,
		0xFF, 0x83, 0x99}},
	{"set_gamma_curve", []byte{opSetGammaCurve,
		0x01, 0x13, 0x17, 0x34, 0x38, 0x3E, 0x2C, 0x47,
		0x07, 0x0C, 0x0F, 0x12, 0x14, 0x11, 0x13, 0x12,
		0x18, 0x0B, 0x17, 0x07, 0x13, 0x02, 0x14, 0x18,
		0x32, 0x37, 0x3D, 0x29, 0x43, 0x07, 0x0E, 0x0C,
		0x0F, 0x11, 0x10, 0x12, 0x12, 0x18, 0x0C, 0x17,
		0x07, 0x13}},
	{"set_power", []byte{opSetPower,
		0x00, 0x7C, 0x38, 0x35, 0x99, 0x09, 0x22, 0x22,
		0x72, 0xF2, 0x68, 0x58}},
	{"set_vref", []byte{opSetVRef,
		0x99}},
	{"set_gip0", []byte{opSetGIP0,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x30, 0x30, 0x00,
		0x10, 0x05, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x07,
		0x07, 0x03, 0x00, 0x00, 0x00, 0x05, 0x08}},
	{"set_gip1", []byte{opSetGIP1,
		0x00, 0x00, 0x01, 0x00, 0x03, 0x02, 0x00, 0x00,
		0x00, 0x00, 0x19, 0x00, 0x18, 0x00, 0x21, 0x20,
		0x00, 0x18, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x32, 0x32, 0x31, 0x31, 0x30, 0x30}},
	{"set_gip2", []byte{opSetGIP2,
		0x40, 0x40, 0x02, 0x03, 0x00, 0x01, 0x40, 0x40,
		0x40, 0x40, 0x18, 0x40, 0x19, 0x40, 0x20, 0x21,
		0x40, 0x18, 0x40, 0x40, 0x40, 0x40, 0x40, 0x40,
		0x40, 0x40, 0x32, 0x32, 0x31, 0x31, 0x30, 0x30}},
	{"set_gip3", []byte{opSetGIP3,
		0x28, 0x2A, 0x00, 0x2A, 0x28, 0x02, 0xC0, 0x2A,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x28, 0x02, 0x00, 0x2A, 0x28, 0x02, 0xC0, 0x2A}},
	{"set_disp", []byte{opSetDisp,
		0x00, 0x80, 0x10, 0x7F, 0x05, 0x01, 0x23, 0x4D,
		0x21, 0x01}},
	{"set_cyc", []byte{opSetCyc,
		0x00, 0x3F, 0x00, 0x41, 0x00, 0x3D, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x0F, 0x01, 0x02,
		0x05, 0x40, 0x00, 0x00, 0x3A, 0x00, 0x41, 0x00,
		0x3D, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00,
		0x0F, 0x01, 0x02, 0x05, 0x00, 0x00, 0x00, 0x3A}},
	{"set_mipi", []byte{opSetMIPI,
		0x03, 0x82, 0xA0, 0xE5}},
}

// Raw bursts issued around the standard display-on sequence.
var (
	burstApply          = Burst{"apply", []byte{0x29}}
	burstControlDisplay = Burst{"write_control_display", []byte{0x53, 0x24}}
)

// VendorInit returns a copy of the vendor configuration bursts in
// transmission order.
func VendorInit() []Burst {
	out := make([]Burst, len(vendorInit))
	for i, b := range vendorInit {
		out[i] = b.clone()
	}
	return out
}
