// Command stubgen synthesizes no-operation implementations of interfaces read
// from a Windows Metadata file and writes their Go projections.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"

	"stubforge/internal"
	"stubforge/internal/generation"
	"stubforge/internal/host"
	"stubforge/internal/metadata"
	"stubforge/internal/stub"

	"go.uber.org/zap"
)

const defaultMetadataPath = "Windows.Win32.winmd"

func main() {
	var metadataFilePath = flag.String("metadataPath", defaultMetadataPath, "The path to the metadata file to read. Default: Windows.Win32.winmd")
	var inputFilePath = flag.String("input", "", "The path to the file listing the interfaces to stub, one per line.")
	var packageName = flag.String("packageName", "stubs", "The name of the package with generated code. Default: stubs")
	var outputPath = flag.String("outputPath", "./output/", "The path where all generated files will be placed.")
	var forceClean = flag.Bool("forceCleanOutput", false, "If given forces cleaning output file before generation.")
	var listing = flag.Bool("listing", false, "If given prints the instructions of every synthesized member.")
	var keepVirtual = flag.Bool("virtual", false, "If given keeps synthesized members overridable.")
	var verbose = flag.Bool("verbose", false, "If given logs every synthesized member.")
	flag.Usage = func() {
		fmt.Println("App that synthesizes placeholder implementations of interfaces.")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		internal.PanicOnError(err)
		internal.SetLogger(logger)
		defer logger.Sync()
	}

	if _, err := os.Stat(*metadataFilePath); errors.Is(err, os.ErrNotExist) {
		*metadataFilePath = defaultMetadataPath
		if err := metadata.DownloadMetadata(*metadataFilePath); err != nil {
			log.Fatalf("Could not download metadata: %v", err)
		}
	}

	if *inputFilePath == "" {
		log.Fatal("Input file path is missing!")
	} else if _, err := os.Stat(*inputFilePath); errors.Is(err, os.ErrNotExist) {
		log.Fatal("Input file does not exist!")
	}

	err := os.Mkdir(*outputPath, os.ModePerm)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		panic(err)
	}

	err = ClearDirectoryIfNotEmpty(*outputPath, *forceClean)
	internal.PanicOnError(err)

	metadataReader, err := metadata.NewReader(*metadataFilePath)
	if err != nil {
		log.Fatal(err)
	}
	generator := generation.NewGenerator(*packageName, *outputPath)

	file, err := os.Open(*inputFilePath)
	internal.PanicOnError(err)
	defer file.Close()
	fileScanner := bufio.NewScanner(file)

	for fileScanner.Scan() {
		name := strings.TrimSpace(fileScanner.Text())
		if name == "" {
			continue
		}

		typeElement, found := metadataReader.TryGetType(name)
		if !found {
			log.Printf("Type %s was not found in the metadata.", name)
			continue
		}

		def, err := StubType(host.DefaultModule(), typeElement, *keepVirtual)
		if err != nil {
			log.Fatal(err)
		}
		if *listing {
			PrintListing(os.Stdout, def)
		}
		generator.RegisterType(def)
	}
	if err := fileScanner.Err(); err != nil {
		log.Fatal(err)
	}

	if err := generator.Generate(); err != nil {
		log.Fatal(err)
	}
}

// StubType defines "<Name>Stub" in m implementing iface, or deriving from it
// when it is a class, with every abstract member replaced by a stub.
func StubType(m *host.Module, iface *metadata.TypeDef, keepVirtual bool) (*metadata.TypeDef, error) {
	var base *metadata.TypeDef
	if !iface.IsInterface() {
		base = iface
	}
	tb, err := m.DefineType(iface.Namespace, iface.Name+"Stub", metadata.TypePublic, base)
	if err != nil {
		return nil, err
	}

	var members []*metadata.Method
	if iface.IsInterface() {
		if err := tb.AddInterfaceImplementation(iface); err != nil {
			return nil, err
		}
		for _, i := range tb.Interfaces() {
			members = append(members, i.Methods...)
		}
	} else {
		if _, err := stub.DefinePassThroughConstructors(tb, nil, nil, nil); err != nil {
			return nil, err
		}
		for t := iface; t != nil; t = t.BaseType {
			for _, method := range t.Methods {
				if method.IsAbstract() {
					members = append(members, method)
				}
			}
		}
	}

	for _, method := range members {
		if _, err := stub.ImplementEmptyStubMethod(tb, method, keepVirtual); err != nil {
			return nil, fmt.Errorf("could not stub %s: %w", method, err)
		}
	}

	def, err := tb.CreateType()
	if err != nil {
		return nil, err
	}
	if err := stub.VerifyStubs(def); err != nil {
		internal.Logger().Warn("stub left a slot unbound", zap.Error(err))
	}
	return def, nil
}

// PrintListing writes the instructions of every member declared by def.
func PrintListing(w io.Writer, def *metadata.TypeDef) {
	fmt.Fprintf(w, ".class %s\n", def.FullName())
	for _, method := range append(append([]*metadata.Method(nil), def.Constructors...), def.Methods...) {
		fmt.Fprintf(w, "  .method %s %s\n", method.Attributes, method.Signature())
		if method.Body == nil {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(method.Body.String(), "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
}

func ClearDirectoryIfNotEmpty(path string, silent bool) error {
	directory, err := os.Open(path)
	if err != nil {
		return err
	}
	defer directory.Close()

	_, err = directory.Readdirnames(1)
	if err == io.EOF {
		return nil
	}

	if err != nil {
		return err
	}

	var response string
	if !silent {
		fmt.Print("Output directory is not empty. Continuation will result in removing all output file. Proceed? [Y/n]")
		fmt.Scan(&response)
		if strings.ToUpper(response) != "Y" {
			log.Fatal("Explicit agreement was not given. Exiting.")
		}
	}

	fmt.Println("Cleaning output directory.")
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.Mkdir(path, os.ModePerm)
}
