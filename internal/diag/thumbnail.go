// Package diag implements the diagnostics transcode helper:
// CommandHub's startFrameProbe decodes one video config+keyframe pair to
// a small RGB thumbnail for a diagnosticsResponse preview field. The
// teacher's go.mod already pulls in github.com/giorgisio/goav (ffmpeg
// bindings) for exactly this kind of one-shot decode but never actually
// calls it anywhere in the codebase; this package is what finally wires
// it in, following goav's own decode-one-frame example shape
// (AvcodecFindDecoder/AvcodecOpen2/AvcodecSendPacket/AvcodecReceiveFrame)
// rather than inventing a different decode path.
package diag

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"unsafe"

	"github.com/giorgisio/goav/avcodec"
	"github.com/giorgisio/goav/avutil"
	"github.com/giorgisio/goav/swscale"
)

// MaxThumbnailDim bounds the longest side of a decoded preview thumbnail;
// frame probes are a debug aid, not a streaming path, so they're always
// downscaled.
const MaxThumbnailDim = 320

// DecodeThumbnail decodes one H264 keyframe to a PNG thumbnail, scaling
// the longest side down to at most MaxThumbnailDim. config and keyframe
// are Annex-B NAL units as session.LastConfigAndKeyframe returns them
// (config is the SPS immediately followed by PPS, keyframe is one IDR
// access unit, both start-code-prefixed). Returns an error if no decoder
// frame could be produced from the given pair (e.g. the keyframe
// predates the config and can't be decoded standalone).
func DecodeThumbnail(config, keyframe []byte) ([]byte, error) {
	codec := avcodec.AvcodecFindDecoder(avcodec.AV_CODEC_ID_H264)
	if codec == nil {
		return nil, fmt.Errorf("diag: h264 decoder unavailable")
	}
	ctx := codec.AvcodecAllocContext3()
	if ctx == nil {
		return nil, fmt.Errorf("diag: allocate decoder context")
	}
	defer ctx.AvcodecClose()

	if err := ctx.AvcodecOpen2(codec, nil); err < 0 {
		return nil, fmt.Errorf("diag: open decoder: code %d", err)
	}

	frame := avutil.AvFrameAlloc()
	if frame == nil {
		return nil, fmt.Errorf("diag: allocate frame")
	}
	defer avutil.AvFrameFree(frame)

	pkt := avcodec.AvPacketAlloc()
	if pkt == nil {
		return nil, fmt.Errorf("diag: allocate packet")
	}
	defer avcodec.AvPacketFree(pkt)

	payload := append(append([]byte(nil), config...), keyframe...)
	pkt.AvPacketFromData(payload, len(payload))

	if ret := ctx.AvcodecSendPacket(pkt); ret < 0 {
		return nil, fmt.Errorf("diag: send packet: code %d", ret)
	}
	if ret := ctx.AvcodecReceiveFrame(frame); ret < 0 {
		return nil, fmt.Errorf("diag: receive frame: code %d (config+keyframe likely insufficient alone)", ret)
	}

	return encodeThumbnailPNG(ctx, frame)
}

// encodeThumbnailPNG converts a decoded YUV frame to RGB via swscale,
// downsamples it to MaxThumbnailDim, and PNG-encodes the result. PNG
// encoding itself is stdlib (image/png): goav decodes, it doesn't offer
// a still-image codec, and no other pack dependency covers PNG either.
func encodeThumbnailPNG(ctx *avcodec.Context, frame *avutil.Frame) ([]byte, error) {
	srcW, srcH := ctx.Width(), ctx.Height()
	if srcW <= 0 || srcH <= 0 {
		return nil, fmt.Errorf("diag: decoded frame has no dimensions")
	}

	dstW, dstH := scaledDims(srcW, srcH, MaxThumbnailDim)

	swsCtx := swscale.SwsGetcontext(
		srcW, srcH, (avcodec.PixelFormat)(frame.Format()),
		dstW, dstH, avcodec.AV_PIX_FMT_RGB24,
		swscale.SWS_BILINEAR, nil, nil, nil,
	)
	if swsCtx == nil {
		return nil, fmt.Errorf("diag: create scale context")
	}
	defer swscale.SwsFreecontext(swsCtx)

	rgb := avutil.AvFrameAlloc()
	if rgb == nil {
		return nil, fmt.Errorf("diag: allocate rgb frame")
	}
	defer avutil.AvFrameFree(rgb)

	rgbBuf := make([]uint8, dstW*dstH*3)
	avutil.AvImageFillArrays(rgb, &rgbBuf[0], avcodec.AV_PIX_FMT_RGB24, dstW, dstH, 1)

	swscale.SwsScale(swsCtx, frame.Data(), frame.Linesize(), 0, srcH, rgb.Data(), rgb.Linesize())

	img := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	stride := rgb.Linesize()[0]
	rgbData := unsafe.Slice((*uint8)(unsafe.Pointer(rgb.Data()[0])), stride*dstH)
	for y := 0; y < dstH; y++ {
		row := rgbData[y*stride : y*stride+dstW*3]
		for x := 0; x < dstW; x++ {
			i := x * 3
			img.Set(x, y, color.RGBA{R: row[i], G: row[i+1], B: row[i+2], A: 0xFF})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("diag: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func scaledDims(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, h * maxDim / w
	}
	return w * maxDim / h, maxDim
}
