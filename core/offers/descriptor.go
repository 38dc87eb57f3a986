package offers

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/gridpack/gridpack/core/infra/schema"
	"github.com/gridpack/gridpack/core/project"
)

//go:embed descriptor.schema.json
var descriptorSchema []byte

// ErrDescriptorInvalid marks descriptors that fail schema validation or the
// per-kind field checks.
var ErrDescriptorInvalid = errors.New("descriptor_invalid")

// Descriptor is the parsed pack.yaml of one pack.
type Descriptor struct {
	Pack   PackMeta    `yaml:"pack" json:"pack"`
	Offers []OfferSpec `yaml:"offers,omitempty" json:"offers,omitempty"`
}

type PackMeta struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// OfferSpec is one advertised capability in a descriptor. Priority is a
// pointer so an absent value can fall back to DefaultPriority.
type OfferSpec struct {
	ID        string `yaml:"id" json:"id"`
	Kind      string `yaml:"kind" json:"kind"`
	Stage     string `yaml:"stage,omitempty" json:"stage,omitempty"`
	Contract  string `yaml:"contract,omitempty" json:"contract,omitempty"`
	Domain    string `yaml:"domain,omitempty" json:"domain,omitempty"`
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
	Priority  *int   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// LoadDescriptor reads the pack.yaml of a pack reference: either a directory
// containing pack.yaml (or pack.yml), or a .tgz / .tar.gz bundle carrying it
// at the archive root.
func LoadDescriptor(path string) (*Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat pack ref: %w", err)
	}
	var data []byte
	if info.IsDir() {
		data, err = readDirDescriptor(path)
	} else {
		data, err = readArchiveDescriptor(path)
	}
	if err != nil {
		return nil, err
	}
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
	}
	if err := validateDescriptor(&desc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
	}
	return &desc, nil
}

func readDirDescriptor(dir string) ([]byte, error) {
	for _, name := range []string{"pack.yaml", "pack.yml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s: no pack.yaml", ErrDescriptorInvalid, dir)
}

// readArchiveDescriptor streams a gzipped tarball looking for pack.yaml at
// the root (a single leading directory component is tolerated).
func readArchiveDescriptor(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDescriptorInvalid, path, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.ToSlash(hdr.Name)
		if idx := strings.Index(name, "/"); idx >= 0 && strings.Count(name, "/") == 1 {
			name = name[idx+1:]
		}
		if name == "pack.yaml" || name == "pack.yml" {
			return io.ReadAll(tr)
		}
	}
	return nil, fmt.Errorf("%w: %s: no pack.yaml in archive", ErrDescriptorInvalid, path)
}

func validateDescriptor(desc *Descriptor) error {
	if err := schema.Validate("pack-descriptor", descriptorSchema, desc); err != nil {
		return err
	}
	for _, offer := range desc.Offers {
		switch offer.Kind {
		case KindHook:
			if offer.Stage == "" || offer.Contract == "" {
				return fmt.Errorf("offer %s: hook offers need stage and contract", offer.ID)
			}
		case KindSubs:
			if offer.Stage == "" || offer.Contract == "" {
				return fmt.Errorf("offer %s: subs offers need stage and contract", offer.ID)
			}
		}
	}
	return nil
}

// DiscoverPacks lists every pack reference in the catalog: application packs
// plus provider packs across all domains, sorted so loads are deterministic.
func DiscoverPacks(root string) ([]string, error) {
	scan, err := project.ScanProject(root)
	if err != nil {
		return nil, err
	}
	refs := append([]string{}, scan.Packs...)
	for _, packs := range scan.Providers {
		refs = append(refs, packs...)
	}
	sort.Strings(refs)
	return refs, nil
}
