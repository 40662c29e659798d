package engine

import (
	rure "github.com/BurntSushi/rure-go"
	coregex "github.com/coregx/coregex"
	"github.com/coregx/coregex/meta"
)

// Artifact is the opaque compiled unit the cache stores. It bundles a
// primary coregex artifact (general partial-match/capture/replace surface),
// a second coregex artifact precompiled with `\A(?:...)\z` anchoring for
// FullMatch, and an optional rure-go artifact used only as a boolean-only
// fast path for string-native views. rure is a best-effort addition: if its
// (more restrictive) parser rejects a pattern coregex accepted, the hybrid
// engine just never takes the fast path for that artifact.
type Artifact struct {
	source       []byte
	neverCapture bool

	primary  *coregex.Regex
	anchored *coregex.Regex // nil if the anchored form failed to compile
	rureRe   *rure.Regex    // nil if rure rejected the pattern

	groupCount  int
	groupNames  map[string]int
	groupOfIdx  map[int]string
	approxBytes uint64
}

// bytesPerDFAState is a heuristic used to translate Options.MaxMemoryBytes
// into coregex's MaxDFAStates cache-size knob; coregex has no direct
// byte-budget config, only a state count. The figure approximates the
// per-state memory meta/config.go's doc comments describe state caching
// at (a dense transition table per ASCII-ish alphabet); if this proves too
// coarse in practice it is the one knob to retune, not the algorithm.
const bytesPerDFAState = 256

// Hybrid is the process-wide Engine implementation.
var Hybrid Engine = hybridEngine{}

type hybridEngine struct{}

func buildConfig(opts *Options) meta.Config {
	cfg := meta.DefaultConfig()
	if opts.MaxMemoryBytes > 0 {
		states := opts.MaxMemoryBytes / bytesPerDFAState
		if states < 1 {
			states = 1
		}
		if states > 1_000_000 {
			states = 1_000_000
		}
		cfg.MaxDFAStates = uint32(states)
	}
	return cfg
}

func (hybridEngine) Compile(source []byte, opts *Options) (*Artifact, error) {
	rewritten := source
	if opts.NeverCapture {
		rewritten = neverCaptureRewrite(rewritten)
	}
	if opts.NeverNewline {
		rewritten = neverNewlineRewrite(rewritten)
	}
	flagged := injectFlags(rewritten, opts)
	cfg := buildConfig(opts)

	primary, err := coregex.CompileWithConfig(string(flagged), cfg)
	if err != nil {
		return nil, &CompileError{Message: err.Error(), OffendingPattern: string(source)}
	}

	anchored, err := coregex.CompileWithConfig(string(anchorWrap(flagged)), cfg)
	if err != nil {
		anchored = nil
	}

	var rureRe *rure.Regex
	if candidate, rerr := rure.Compile(string(flagged)); rerr == nil {
		rureRe = candidate
	}

	names := primary.SubexpNames()
	groupOfIdx := make(map[int]string, len(names))
	groupNames := make(map[string]int, len(names))
	for i, n := range names {
		groupOfIdx[i] = n
		if n != "" {
			groupNames[n] = i
		}
	}

	a := &Artifact{
		source:       source,
		neverCapture: opts.NeverCapture,
		primary:      primary,
		anchored:     anchored,
		rureRe:       rureRe,
		groupCount:   primary.NumSubexp() - 1, // NumSubexp counts the implicit group 0
		groupNames:   groupNames,
		groupOfIdx:   groupOfIdx,
		approxBytes:  estimateBytes(source, primary),
	}
	return a, nil
}

// estimateBytes is a rough, monotone-in-pattern-length approximation of
// compiled artifact size; coregex exposes no direct memory accounting API
// in the retrieved surface, so the cache's approx_bytes capacity accounting
// (spec §3/§6) uses source length scaled by a constant fudge factor standing
// in for automaton expansion, plus a fixed per-artifact overhead for the two
// compiled programs and any rure artifact.
func estimateBytes(source []byte, primary *coregex.Regex) uint64 {
	const perByteExpansion = 48
	const fixedOverhead = 512
	n := uint64(len(source)) * perByteExpansion
	if primary != nil {
		n += uint64(primary.NumSubexp()) * 64
	}
	return n + fixedOverhead
}

func (hybridEngine) FullMatch(a *Artifact, v View) bool {
	if a.anchored != nil {
		return a.anchored.Match(v.AsBytes())
	}
	// Fallback: a full match must start at 0 and consume the entire view.
	idx := a.primary.FindIndex(v.AsBytes())
	return idx != nil && idx[0] == 0 && idx[1] == v.Len()
}

func (hybridEngine) PartialMatch(a *Artifact, v View) bool {
	if v.IsText() && a.rureRe != nil {
		return a.rureRe.IsMatch(v.AsString())
	}
	return a.primary.Match(v.AsBytes())
}

func (hybridEngine) MatchWithCaptures(a *Artifact, v View, mode MatchMode) (ranges []ByteRange, ok bool) {
	re := a.primary
	b := v.AsBytes()
	if mode == Anchored && a.anchored != nil {
		re = a.anchored
	}
	idx := re.FindSubmatchIndex(b)
	if idx == nil {
		return nil, false
	}
	if mode == Anchored && a.anchored == nil && !(idx[0] == 0 && idx[1] == len(b)) {
		return nil, false
	}
	out := make([]ByteRange, len(idx)/2)
	for i := range out {
		s, e := idx[2*i], idx[2*i+1]
		if s < 0 || e < 0 {
			out[i] = AbsentRange
			continue
		}
		out[i] = ByteRange{Start: s, End: e}
	}
	return out, true
}

func (hybridEngine) FindAll(a *Artifact, v View) [][]ByteRange {
	b := v.AsBytes()
	var results [][]ByteRange
	start := 0
	for start <= len(b) {
		idx := a.primary.FindSubmatchIndex(b[start:])
		if idx == nil {
			break
		}
		row := make([]ByteRange, len(idx)/2)
		for i := range row {
			s, e := idx[2*i], idx[2*i+1]
			if s < 0 || e < 0 {
				row[i] = AbsentRange
				continue
			}
			row[i] = ByteRange{Start: start + s, End: start + e}
		}
		results = append(results, row)

		if idx[1] == idx[0] {
			start += idx[1] + 1
		} else {
			start += idx[1]
		}
	}
	return results
}

func (hybridEngine) ReplaceFirst(a *Artifact, v View, rewrite []byte) ([]byte, bool) {
	b := v.AsBytes()
	idx := a.primary.FindSubmatchIndex(b)
	if idx == nil {
		return append([]byte(nil), b...), false
	}
	translated, err := translateRewriteTemplate(rewrite)
	if err != nil {
		return append([]byte(nil), b...), false
	}
	var out []byte
	out = append(out, b[:idx[0]]...)
	out = expandTemplate(out, translated, b, idx, a.groupNames)
	out = append(out, b[idx[1]:]...)
	return out, true
}

func (hybridEngine) ReplaceAll(a *Artifact, v View, rewrite []byte) ([]byte, int) {
	translated, err := translateRewriteTemplate(rewrite)
	if err != nil {
		return append([]byte(nil), v.AsBytes()...), 0
	}
	return a.primary.ReplaceAll(v.AsBytes(), translated), countMatches(a, v)
}

func countMatches(a *Artifact, v View) int {
	all := a.primary.FindAll(v.AsBytes(), -1)
	return len(all)
}

func (hybridEngine) QuoteLiteral(src []byte) []byte { return quoteLiteral(src) }

func (hybridEngine) Rewrite(a *Artifact, view View, rewrite []byte, captures []ByteRange) ([]byte, bool) {
	if len(captures) == 0 || !captures[0].Participated() {
		return nil, false
	}
	translated, err := translateRewriteTemplate(rewrite)
	if err != nil {
		return nil, false
	}
	b := view.AsBytes()
	idx := make([]int, 2*len(captures))
	for i, c := range captures {
		if !c.Participated() {
			idx[2*i], idx[2*i+1] = -1, -1
			continue
		}
		idx[2*i], idx[2*i+1] = c.Start, c.End
	}
	return expandTemplate(nil, translated, b, idx, a.groupNames), true
}

func (hybridEngine) ValidateRewrite(a *Artifact, rewrite []byte) error {
	translated, err := translateRewriteTemplate(rewrite)
	if err != nil {
		return err
	}
	max, err := maxGroupRef(translated)
	if err != nil {
		return err
	}
	if max > a.groupCount {
		return &RewriteError{Message: "group reference exceeds pattern's capture count"}
	}
	return nil
}

func (hybridEngine) Introspect(a *Artifact) Introspection {
	return Introspection{
		GroupCount:  a.groupCount,
		NamedGroups: a.groupNames,
		GroupNames:  a.groupOfIdx,
		ApproxBytes: a.approxBytes,
		ProgramSize: len(a.source),
	}
}

// expandTemplate substitutes `${N}` references in translated against src
// using the flat [start0,end0,start1,end1,...] idx slice, appending to dst.
// This mirrors coregex's own expand() (seen exercised in replace_test.go's
// TestExpandEdgeCases) closely enough to share its template grammar, but is
// written standalone here because Rewrite operates on externally supplied
// capture ranges rather than a fresh match against a.primary.
func expandTemplate(dst []byte, translated []byte, src []byte, idx []int, groupNames map[string]int) []byte {
	_ = groupNames
	for i := 0; i < len(translated); i++ {
		if translated[i] != '$' {
			dst = append(dst, translated[i])
			continue
		}
		if i+1 < len(translated) && translated[i+1] == '$' {
			dst = append(dst, '$')
			i++
			continue
		}
		if i+1 >= len(translated) || translated[i+1] != '{' {
			dst = append(dst, translated[i])
			continue
		}
		j := i + 2
		for j < len(translated) && translated[j] >= '0' && translated[j] <= '9' {
			j++
		}
		if j == i+2 || j >= len(translated) || translated[j] != '}' {
			dst = append(dst, translated[i])
			continue
		}
		n := 0
		for _, c := range translated[i+2 : j] {
			n = n*10 + int(c-'0')
		}
		if 2*n+1 < len(idx) && idx[2*n] >= 0 && idx[2*n+1] >= 0 {
			dst = append(dst, src[idx[2*n]:idx[2*n+1]]...)
		}
		i = j
	}
	return dst
}
