package fingerprint

import "slices"

// TLSParams are the ClientHello lists for one browser family, as IANA code
// points. GREASE marks families that sprinkle GREASE values (Chromium).
type TLSParams struct {
	Ciphers             []uint16
	Curves              []uint16
	SignatureAlgorithms []uint16
	GREASE              bool
}

var chromiumTLS = TLSParams{
	Ciphers: []uint16{
		0x1301, 0x1302, 0x1303, // TLS 1.3 AES-128-GCM, AES-256-GCM, CHACHA20
		0xc02b, 0xc02f, 0xc02c, 0xc030,
		0xcca9, 0xcca8,
		0xc013, 0xc014,
		0x009c, 0x009d, 0x002f, 0x0035,
	},
	Curves: []uint16{0x001d, 0x0017, 0x0018},
	SignatureAlgorithms: []uint16{
		0x0403, 0x0804, 0x0401,
		0x0503, 0x0805, 0x0501,
		0x0806, 0x0601,
	},
	GREASE: true,
}

var firefoxTLS = TLSParams{
	Ciphers: []uint16{
		0x1301, 0x1303, 0x1302,
		0xc02b, 0xc02f, 0xcca9, 0xcca8, 0xc02c, 0xc030,
		0xc00a, 0xc009, 0xc013, 0xc014,
		0x009c, 0x009d, 0x002f, 0x0035,
	},
	Curves: []uint16{0x001d, 0x0017, 0x0018, 0x0019, 0x0100, 0x0101},
	SignatureAlgorithms: []uint16{
		0x0403, 0x0503, 0x0603,
		0x0804, 0x0805, 0x0806,
		0x0401, 0x0501, 0x0601,
		0x0203, 0x0201,
	},
}

var safariTLS = TLSParams{
	Ciphers: []uint16{
		0x1301, 0x1302, 0x1303,
		0xc02c, 0xc02b, 0xcca9, 0xc030, 0xc02f, 0xcca8,
		0xc00a, 0xc009, 0xc014, 0xc013,
		0x009d, 0x009c, 0x0035, 0x002f,
		0xc008, 0xc012, 0x000a,
	},
	Curves: []uint16{0x001d, 0x0017, 0x0018, 0x0019},
	SignatureAlgorithms: []uint16{
		0x0403, 0x0804, 0x0401,
		0x0503, 0x0203, 0x0805,
		0x0501, 0x0806, 0x0601, 0x0201,
	},
}

// TLS returns the handshake parameters matching p's family so the TLS
// fingerprint agrees with the declared User-Agent.
func TLS(p Profile) TLSParams {
	var src TLSParams
	switch p.Family {
	case Chromium:
		src = chromiumTLS
	case Firefox:
		src = firefoxTLS
	case Safari:
		src = safariTLS
	default:
		src = chromiumTLS
	}
	return TLSParams{
		Ciphers:             slices.Clone(src.Ciphers),
		Curves:              slices.Clone(src.Curves),
		SignatureAlgorithms: slices.Clone(src.SignatureAlgorithms),
		GREASE:              src.GREASE,
	}
}
