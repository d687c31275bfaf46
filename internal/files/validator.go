package files

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BioHazard786/Coderoom/internal/errs"
)

// Kind is the media a file feeds.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// MediaFile describes a validated local media source.
type MediaFile struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	Size int64
	Kind Kind

	// Codec is the container's codec tag: VP80, VP90 or AV01 for IVF,
	// opus for Ogg.
	Codec string
}

var (
	ivfMagic = []byte("DKIF")
	oggMagic = []byte("OggS")
)

// ValidateMedia checks that path exists, is readable, and holds a container
// the media pipeline can stream for kind: IVF for video, Ogg/Opus for audio.
func ValidateMedia(path string, kind Kind) (MediaFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return MediaFile{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return MediaFile{}, errs.Wrap("validate media", errs.ErrInvalidFile, path+": file does not exist")
		}
		return MediaFile{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return MediaFile{}, errs.Wrap("validate media", errs.ErrInvalidFile, path+": is a directory")
	}

	file, err := os.Open(absPath)
	if err != nil {
		return MediaFile{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	defer file.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(file, header); err != nil {
		return MediaFile{}, errs.Wrap("validate media", errs.ErrInvalidFile, path+": too short to be a media file")
	}

	info := MediaFile{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Kind: kind,
	}

	switch kind {
	case KindVideo:
		if !bytes.Equal(header[:4], ivfMagic) {
			return MediaFile{}, errs.Wrap("validate media", errs.ErrInvalidFile, path+": video must be an IVF file")
		}
		info.Codec = strings.TrimRight(string(header[8:12]), "\x00")
		switch info.Codec {
		case "VP80", "VP90", "AV01":
		default:
			return MediaFile{}, errs.Wrap("validate media", errs.ErrInvalidFile, path+": unsupported IVF codec "+info.Codec)
		}
	case KindAudio:
		if !bytes.Equal(header[:4], oggMagic) {
			return MediaFile{}, errs.Wrap("validate media", errs.ErrInvalidFile, path+": audio must be an Ogg/Opus file")
		}
		info.Codec = "opus"
	default:
		return MediaFile{}, fmt.Errorf("unknown media kind %q", kind)
	}

	return info, nil
}

// ValidateAll validates every non-empty source and joins the failures.
func ValidateAll(videoPath, audioPath string) (video, audio *MediaFile, err error) {
	var failures []string

	if videoPath != "" {
		v, err := ValidateMedia(videoPath, KindVideo)
		if err != nil {
			failures = append(failures, err.Error())
		} else {
			video = &v
		}
	}
	if audioPath != "" {
		a, err := ValidateMedia(audioPath, KindAudio)
		if err != nil {
			failures = append(failures, err.Error())
		} else {
			audio = &a
		}
	}

	if len(failures) > 0 {
		return nil, nil, fmt.Errorf("media validation failed:\n  - %s", strings.Join(failures, "\n  - "))
	}
	return video, audio, nil
}
