package transport

import (
	utls "github.com/refraction-networking/utls"

	"github.com/hazyhaar/urlgate/linkprobe/internal/fingerprint"
)

// keyShareGroups lists the groups utls can generate a key share for, in
// preference order.
var keyShareGroups = []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384}

// clientHelloSpec renders TLSParams as a utls spec. Extension order follows
// what the browsers send.
func clientHelloSpec(p fingerprint.TLSParams) *utls.ClientHelloSpec {
	ciphers := make([]uint16, 0, len(p.Ciphers)+1)
	curves := make([]utls.CurveID, 0, len(p.Curves)+1)
	versions := []uint16{utls.VersionTLS13, utls.VersionTLS12}
	var shares []utls.KeyShare

	if p.GREASE {
		ciphers = append(ciphers, utls.GREASE_PLACEHOLDER)
		curves = append(curves, utls.CurveID(utls.GREASE_PLACEHOLDER))
		versions = append([]uint16{utls.GREASE_PLACEHOLDER}, versions...)
		shares = append(shares, utls.KeyShare{Group: utls.CurveID(utls.GREASE_PLACEHOLDER), Data: []byte{0}})
	}
	ciphers = append(ciphers, p.Ciphers...)
	for _, c := range p.Curves {
		curves = append(curves, utls.CurveID(c))
	}
	shares = append(shares, utls.KeyShare{Group: shareGroup(p.Curves)})

	sigs := make([]utls.SignatureScheme, 0, len(p.SignatureAlgorithms))
	for _, s := range p.SignatureAlgorithms {
		sigs = append(sigs, utls.SignatureScheme(s))
	}

	var exts []utls.TLSExtension
	if p.GREASE {
		exts = append(exts, &utls.UtlsGREASEExtension{})
	}
	exts = append(exts,
		&utls.SNIExtension{},
		&utls.ExtendedMasterSecretExtension{},
		&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
		&utls.SupportedCurvesExtension{Curves: curves},
		&utls.SupportedPointsExtension{SupportedPoints: []byte{0}},
		&utls.SessionTicketExtension{},
		&utls.ALPNExtension{AlpnProtocols: []string{"h2", "http/1.1"}},
		&utls.StatusRequestExtension{},
		&utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: sigs},
		&utls.SCTExtension{},
		&utls.KeyShareExtension{KeyShares: shares},
		&utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}},
		&utls.SupportedVersionsExtension{Versions: versions},
	)
	if p.GREASE {
		exts = append(exts,
			&utls.UtlsCompressCertExtension{Algorithms: []utls.CertCompressionAlgo{utls.CertCompressionBrotli}},
			&utls.UtlsGREASEExtension{},
			&utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle},
		)
	}

	return &utls.ClientHelloSpec{
		TLSVersMin:         utls.VersionTLS12,
		TLSVersMax:         utls.VersionTLS13,
		CipherSuites:       ciphers,
		CompressionMethods: []byte{0},
		Extensions:         exts,
	}
}

// shareGroup picks the first advertised curve utls can build a share for.
func shareGroup(curves []uint16) utls.CurveID {
	for _, c := range curves {
		for _, g := range keyShareGroups {
			if utls.CurveID(c) == g {
				return g
			}
		}
	}
	return utls.X25519
}
