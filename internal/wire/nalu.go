package wire

// SplitAnnexBNALUs splits an Annex-B bitstream into individual NAL units,
// stripping the 00 00 01 / 00 00 00 01 start codes.
func SplitAnnexBNALUs(b []byte) [][]byte {
	var nalus [][]byte
	i := 0
	for {
		scStart, scEnd := findStartCode(b, i)
		if scStart < 0 {
			break
		}
		nextStart, _ := findStartCode(b, scEnd)
		if nextStart < 0 {
			if n := b[scEnd:]; len(n) > 0 {
				nalus = append(nalus, n)
			}
			break
		}
		if n := b[scEnd:nextStart]; len(n) > 0 {
			nalus = append(nalus, n)
		}
		i = nextStart
	}
	return nalus
}

func findStartCode(b []byte, from int) (int, int) {
	for i := from; i+3 <= len(b); i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			return i, i + 3
		}
		if i+4 <= len(b) && b[i] == 0 && b[i+1] == 0 && b[i+2] == 0 && b[i+3] == 1 {
			return i, i + 4
		}
	}
	return -1, -1
}

// NALUType returns the five-bit nal_unit_type field.
func NALUType(n []byte) uint8 {
	if len(n) == 0 {
		return 0
	}
	return n[0] & 0x1F
}

const (
	naluTypeSPS = 7
	naluTypePPS = 8
	naluTypeIDR = 5
)

// IsSPS reports whether a NAL unit is a sequence parameter set.
func IsSPS(n []byte) bool { return NALUType(n) == naluTypeSPS }

// IsPPS reports whether a NAL unit is a picture parameter set.
func IsPPS(n []byte) bool { return NALUType(n) == naluTypePPS }

// IsIDR reports whether a NAL unit is an IDR (keyframe) slice.
func IsIDR(n []byte) bool { return NALUType(n) == naluTypeIDR }

// FirstNALU returns the first NAL unit in an Annex-B access unit, start
// code stripped. Falls back to treating the whole slice as one NALU if no
// start code is present.
func FirstNALU(accessUnit []byte) []byte {
	nalus := SplitAnnexBNALUs(accessUnit)
	if len(nalus) > 0 {
		return nalus[0]
	}
	return accessUnit
}

// bitReader reads MSB-first bits out of a byte slice.
type bitReader struct {
	b []byte
	i int
}

func (br *bitReader) u(n int) (uint, bool) {
	if n <= 0 {
		return 0, true
	}
	var v uint
	for k := 0; k < n; k++ {
		byteIndex := br.i / 8
		if byteIndex >= len(br.b) {
			return 0, false
		}
		bitIndex := 7 - (br.i % 8)
		bit := (br.b[byteIndex] >> uint(bitIndex)) & 1
		v = (v << 1) | uint(bit)
		br.i++
	}
	return v, true
}

func (br *bitReader) skip(n int) bool { _, ok := br.u(n); return ok }

func (br *bitReader) ue() (uint, bool) {
	var leadingZeros int
	for {
		b, ok := br.u(1)
		if !ok {
			return 0, false
		}
		if b == 0 {
			leadingZeros++
		} else {
			break
		}
	}
	if leadingZeros == 0 {
		return 0, true
	}
	val, ok := br.u(leadingZeros)
	if !ok {
		return 0, false
	}
	return (1 << leadingZeros) - 1 + val, true
}

func (br *bitReader) se() (int, bool) {
	uev, ok := br.ue()
	if !ok {
		return 0, false
	}
	k := int(uev)
	if k%2 == 0 {
		return -k / 2, true
	}
	return (k + 1) / 2, true
}

// ParseSPSDimensions extracts width/height from an H.264 SPS NAL unit by
// walking its Exp-Golomb-coded fields. Returns ok=false if the unit isn't
// an SPS or is too short to parse.
func ParseSPSDimensions(nal []byte) (w, h uint16, ok bool) {
	if len(nal) < 4 || (nal[0]&0x1F) != naluTypeSPS {
		return
	}
	// Strip emulation prevention bytes (00 00 03 -> 00 00) before
	// interpreting the RBSP as a raw bitstream.
	rbsp := make([]byte, 0, len(nal)-1)
	for i := 1; i < len(nal); i++ {
		if i+2 < len(nal) && nal[i] == 0 && nal[i+1] == 0 && nal[i+2] == 3 {
			rbsp = append(rbsp, 0, 0)
			i += 2
			continue
		}
		rbsp = append(rbsp, nal[i])
	}
	br := bitReader{b: rbsp}

	if !br.skip(8 + 8 + 8) { // profile_idc, constraint_flags, level_idc
		return
	}
	if _, ok2 := br.ue(); !ok2 { // seq_parameter_set_id
		return
	}

	var chromaFormatIDC uint = 1
	profileIDC := rbsp[0]
	if profileIDC == 100 || profileIDC == 110 || profileIDC == 122 ||
		profileIDC == 244 || profileIDC == 44 || profileIDC == 83 ||
		profileIDC == 86 || profileIDC == 118 || profileIDC == 128 ||
		profileIDC == 138 || profileIDC == 139 || profileIDC == 134 {
		v, ok2 := br.ue()
		if !ok2 {
			return
		}
		chromaFormatIDC = v
		if chromaFormatIDC == 3 {
			if _, ok3 := br.u(1); !ok3 {
				return
			}
		}
		if _, ok2 = br.ue(); !ok2 { // bit_depth_luma_minus8
			return
		}
		if _, ok2 = br.ue(); !ok2 { // bit_depth_chroma_minus8
			return
		}
		if !br.skip(1) { // qpprime_y_zero_transform_bypass_flag
			return
		}
		f, ok2 := br.u(1) // seq_scaling_matrix_present_flag
		if !ok2 {
			return
		}
		if f == 1 {
			n := 8
			if chromaFormatIDC == 3 {
				n = 12
			}
			for i := 0; i < n; i++ {
				g, ok3 := br.u(1)
				if !ok3 {
					return
				}
				if g == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					lastScale, nextScale := 8, 8
					for j := 0; j < size; j++ {
						if nextScale != 0 {
							delta, ok4 := br.se()
							if !ok4 {
								return
							}
							nextScale = (lastScale + int(delta) + 256) % 256
						}
						if nextScale != 0 {
							lastScale = nextScale
						}
						_ = j
					}
				}
			}
		}
	}

	if _, ok2 := br.ue(); !ok2 { // log2_max_frame_num_minus4
		return
	}
	pct, ok2 := br.ue() // pic_order_cnt_type
	if !ok2 {
		return
	}
	if pct == 0 {
		if _, ok2 = br.ue(); !ok2 { // log2_max_pic_order_cnt_lsb_minus4
			return
		}
	} else if pct == 1 {
		if !br.skip(1) { // delta_pic_order_always_zero_flag
			return
		}
		if _, ok2 = br.se(); !ok2 { // offset_for_non_ref_pic
			return
		}
		if _, ok2 = br.se(); !ok2 { // offset_for_top_to_bottom_field
			return
		}
		n, ok2 := br.ue() // num_ref_frames_in_pic_order_cnt_cycle
		if !ok2 {
			return
		}
		for i := uint(0); i < n; i++ {
			if _, ok2 = br.se(); !ok2 {
				return
			}
		}
	}

	if _, ok2 = br.ue(); !ok2 { // max_num_ref_frames
		return
	}
	if !br.skip(1) { // gaps_in_frame_num_value_allowed_flag
		return
	}

	pwMinus1, ok2 := br.ue()
	if !ok2 {
		return
	}
	phMinus1, ok2 := br.ue()
	if !ok2 {
		return
	}
	frameMbsOnlyFlag, ok2 := br.u(1)
	if !ok2 {
		return
	}
	if frameMbsOnlyFlag == 0 {
		if !br.skip(1) { // mb_adaptive_frame_field_flag
			return
		}
	}
	if !br.skip(1) { // direct_8x8_inference_flag
		return
	}

	cropLeft, cropRight, cropTop, cropBottom := uint(0), uint(0), uint(0), uint(0)
	fcrop, ok2 := br.u(1)
	if !ok2 {
		return
	}
	if fcrop == 1 {
		if cropLeft, ok2 = br.ue(); !ok2 {
			return
		}
		if cropRight, ok2 = br.ue(); !ok2 {
			return
		}
		if cropTop, ok2 = br.ue(); !ok2 {
			return
		}
		if cropBottom, ok2 = br.ue(); !ok2 {
			return
		}
	}

	mbWidth := pwMinus1 + 1
	mbHeight := (phMinus1 + 1) * (2 - frameMbsOnlyFlag)

	var subW, subH uint = 1, 1
	switch chromaFormatIDC {
	case 1:
		subW, subH = 2, 2
	case 2:
		subW, subH = 2, 1
	default:
		subW, subH = 1, 1
	}
	cropUnitX := subW
	cropUnitY := subH * (2 - frameMbsOnlyFlag)

	width := int(mbWidth*16) - int((cropLeft+cropRight)*cropUnitX)
	height := int(mbHeight*16) - int((cropTop+cropBottom)*cropUnitY)

	if width <= 0 || height <= 0 || width > 65535 || height > 65535 {
		return
	}
	return uint16(width), uint16(height), true
}
