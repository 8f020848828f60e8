package gazetteer

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// fetchShapefile downloads the IBGE municipality-seat shapefile over FTP,
// extracts it and reads one record per municipality with the seat's
// coordinates. It serves as the coordinate-bearing fallback when the JSON
// APIs are unreachable.
func (f *Fetcher) fetchShapefile(ctx context.Context, source Source) ([]Record, error) {
	log := zap.L().With(zap.String("component", "gazetteer.shapefile"))

	if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "gazetteer: create temp dir")
	}

	parts := strings.Split(source.URL, "/")
	zipName := parts[len(parts)-1]
	zipPath := filepath.Join(f.tempDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("shapefile archive already present", zap.String("path", zipPath))
	} else {
		log.Info("downloading municipality shapefile", zap.String("url", source.URL))
		if err := f.downloadFTP(ctx, source.URL, zipPath); err != nil {
			return nil, eris.Wrap(err, "gazetteer: download shapefile")
		}
	}

	extractDir := filepath.Join(f.tempDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "gazetteer: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return nil, eris.Wrap(err, "gazetteer: extract shapefile archive")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: locate .shp file")
	}

	return parseMunicipalityShapefile(shpPath)
}

// downloadFTP retrieves an ftp:// URL to a local file.
func (f *Fetcher) downloadFTP(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}
	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return eris.Wrapf(err, "dial %s", host)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return eris.Wrap(err, "anonymous login")
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return eris.Wrapf(err, "retrieve %s", u.Path)
	}
	defer resp.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, resp); err != nil {
		return eris.Wrap(err, "copy ftp payload")
	}
	return nil
}

// shapefile attribute name candidates across IBGE releases.
var (
	shpIDFields    = []string{"cd_geocodm", "cd_geocmu", "cd_mun", "geocodigo"}
	shpNameFields  = []string{"nm_municip", "nm_mun", "nome"}
	shpStateFields = []string{"uf", "sigla_uf", "nm_uf_sigl", "cd_uf"}
	shpLatFields   = []string{"lat", "latitude"}
	shpLonFields   = []string{"long", "lon", "longitude"}
)

func parseMunicipalityShapefile(shpPath string) ([]Record, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, field := range fields {
		name := strings.TrimRight(field.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	lookup := func(candidates []string) string {
		for _, name := range candidates {
			if idx, ok := fieldIdx[name]; ok {
				value := strings.TrimRight(reader.Attribute(idx), "\x00")
				if v := strings.TrimSpace(value); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var records []Record
	for reader.Next() {
		_, shape := reader.Shape()

		record := Record{
			ID:        lookup(shpIDFields),
			Name:      lookup(shpNameFields),
			StateCode: strings.ToUpper(lookup(shpStateFields)),
		}
		meta := stateMeta[record.StateCode]
		record.StateName = meta.name
		record.Region = meta.region

		record.Latitude = strconvFloat(lookup(shpLatFields))
		record.Longitude = strconvFloat(lookup(shpLonFields))
		if record.Latitude == nil || record.Longitude == nil {
			if point, ok := shape.(*shp.Point); ok && point != nil {
				lat, lon := point.Y, point.X
				record.Latitude = &lat
				record.Longitude = &lon
			}
		}

		records = append(records, record)
	}
	return records, nil
}

// extractZIP unpacks a ZIP archive, flattening directory structure.
func extractZIP(zipPath, destDir string) error {
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrapf(err, "open zip %s", zipPath)
	}
	defer archive.Close() //nolint:errcheck

	for _, file := range archive.File {
		if file.FileInfo().IsDir() {
			continue
		}
		destPath := filepath.Join(destDir, filepath.Base(file.Name))

		src, err := file.Open()
		if err != nil {
			return eris.Wrapf(err, "open zip entry %s", file.Name)
		}
		dst, err := os.Create(destPath)
		if err != nil {
			src.Close()
			return eris.Wrapf(err, "create %s", destPath)
		}
		_, err = io.Copy(dst, src) //nolint:gosec // archive comes from a pinned IBGE URL
		src.Close()
		dst.Close()
		if err != nil {
			return eris.Wrapf(err, "extract %s", file.Name)
		}
	}
	return nil
}

// findFileByExt returns the first file under dir with the given extension.
func findFileByExt(dir, ext string) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", eris.Wrapf(err, "walk %s", dir)
	}
	if found == "" {
		return "", eris.Errorf("no %s file found under %s", ext, dir)
	}
	return found, nil
}
