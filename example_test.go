package trove_test

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jpl-au/trove"
)

func Example() {
	store, err := trove.New(trove.NewMemStore(), trove.Config{})
	if err != nil {
		log.Fatal(err)
	}

	store.SaveProperty("notes", "n1", "title", "Groceries")
	store.SaveProperty("notes", "n1", "body", "eggs, milk")

	title, _, _ := store.LoadProperty("notes", "n1", "title")
	props, _, _ := store.ListProperties("notes", "n1")
	fmt.Println(title)
	fmt.Println(props)
	// Output:
	// Groceries
	// [title body]
}

func ExampleStore_DeleteObject() {
	store, _ := trove.New(trove.NewMemStore(), trove.Config{})
	store.SaveProperty("notes", "n1", "title", "Groceries")
	store.SaveProperty("notes", "n1", "body", "eggs, milk")

	store.DeleteObject("notes", "n1")

	exists, _ := store.ObjectExists("notes", "n1")
	_, ok, _ := store.LoadProperty("notes", "n1", "body")
	fmt.Println(exists, ok)
	// Output: false false
}

func ExampleStore_DeleteProperty() {
	store, _ := trove.New(trove.NewMemStore(), trove.Config{})
	store.SaveProperty("notes", "n1", "title", "Groceries")

	// The object outlives its last property.
	store.DeleteProperty("notes", "n1", "title")

	exists, _ := store.ObjectExists("notes", "n1")
	props, _, _ := store.ListProperties("notes", "n1")
	fmt.Println(exists, len(props))
	// Output: true 0
}

func ExampleStore_PropertyPath() {
	store, _ := trove.New(trove.NewMemStore(), trove.Config{})

	key, _ := store.PropertyPath("notes", "n1", "title")
	fmt.Println(key)
	fmt.Println(store.MetadataPath("notes", "n1"))
	// Output:
	// notes_n1__$title$
	// notes_n1_proplist_
}

func ExampleStore_App() {
	store, _ := trove.New(trove.NewMemStore(), trove.Config{})
	notes, _ := store.App("notes")

	notes.SaveProperty("n1", "", "raw data")

	v, _, _ := notes.LoadProperty("n1", trove.DefaultProperty)
	fmt.Println(v)
	// Output: raw data
}

func ExampleOpenFile() {
	dir, _ := os.MkdirTemp("", "trove-example")
	defer os.RemoveAll(dir)

	fs, err := trove.OpenFile(filepath.Join(dir, "notes.trove"), trove.FileConfig{})
	if err != nil {
		log.Fatal(err)
	}
	defer fs.Close()

	store, _ := trove.New(fs, trove.Config{})
	store.SaveProperty("notes", "n1", "title", "Groceries")
	store.SaveProperty("notes", "n1", "title", "Shopping")

	fmt.Println(fs.Len(), fs.Stale())
	// Output: 2 1
}
