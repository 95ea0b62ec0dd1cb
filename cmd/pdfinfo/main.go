// Command pdfinfo prints a summary of a file: version, page count and
// bounds, object statistics, and images.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/scribd/keynote/document"
	"github.com/scribd/keynote/observability"
)

func main() {
	password := flag.String("password", "", "user password for encrypted files")
	verbose := flag.Bool("v", false, "log tolerated irregularities to stderr")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfinfo [-password pw] [-v] <file>")
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(1)
	}

	opts := []document.Option{}
	if *password != "" {
		opts = append(opts, document.WithPassword([]byte(*password)))
	}
	if *verbose {
		opts = append(opts, document.WithLogger(observability.NewWriterLogger(os.Stderr)))
	}

	d, err := document.Load(data, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("version: %d.%d\n", d.Major, d.Minor)
	if id := d.FileID(); id != nil {
		fmt.Printf("id:      %x\n", id)
	}
	fmt.Printf("pages:   %d\n", len(d.Pages))
	for i, page := range d.Pages {
		r, err := page.Bounds()
		if err != nil {
			fmt.Printf("  page %d: no bounds (%v)\n", i+1, err)
			continue
		}
		fmt.Printf("  page %d: %.2f x %.2f at (%.2f, %.2f)\n", i+1, r.Width(), r.Height(), r.LLX, r.LLY)
	}

	objs, err := d.Objects()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("objects: %d\n", len(objs))

	images, err := d.Images()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfinfo: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("images:  %d\n", len(images))
	for _, img := range images {
		w, _ := img.Dict().GetInt("Width")
		h, _ := img.Dict().GetInt("Height")
		fmt.Printf("  %s: %dx%d\n", img.Ref(), w, h)
	}
}
