package scanner

import (
	"bytes"
	"context"

	"github.com/basit/packshare-backend/apperr"
	"github.com/basit/packshare-backend/audit"
)

// Buffer is one candidate upload handed to the gate.
type Buffer struct {
	Name string
	Data []byte
}

// eicarSignature is the standard antivirus test string; the heuristic knows
// it so the degrade path stays testable end to end.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

var heuristicPatterns = map[string][]byte{
	"Eicar-Test-Signature": []byte(eicarSignature),
	"Heuristic.MZ-Packed":  {0x4d, 0x5a, 0x90, 0x00, 0x03, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xff, 0xff},
}

// Gate scans upload batches. Buffers are scanned sequentially and the first
// infected one aborts the entire batch; a multi-file upload is never
// partially accepted. When the scanner itself is unreachable the gate
// degrades to a byte-pattern heuristic instead of blocking uploads, and the
// degradation is audited.
type Gate struct {
	scanner Scanner
	auditor *audit.Auditor
}

func NewGate(scanner Scanner, auditor *audit.Auditor) *Gate {
	return &Gate{scanner: scanner, auditor: auditor}
}

// Check returns nil when every buffer is clean, or a virus error naming the
// first infected buffer.
func (g *Gate) Check(ctx context.Context, buffers []Buffer) error {
	for _, buf := range buffers {
		result, err := g.scanOne(ctx, buf.Data)
		if err != nil {
			return err
		}
		if result.Infected {
			g.auditor.ScanRejected(ctx, buf.Name, result.Signature)
			return apperr.New(apperr.KindVirus,
				"file %q rejected: %s", buf.Name, result.Signature)
		}
	}
	return nil
}

func (g *Gate) scanOne(ctx context.Context, data []byte) (Result, error) {
	if g.scanner != nil {
		result, err := g.scanner.Scan(ctx, data)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		g.auditor.ScannerDegraded(ctx, err)
	}
	return heuristicScan(data), nil
}

func heuristicScan(data []byte) Result {
	for signature, pattern := range heuristicPatterns {
		if bytes.Contains(data, pattern) {
			return Result{Infected: true, Signature: signature}
		}
	}
	return Result{}
}
