package main

// Interactive shell for GoDB. Loads a catalog schema file, then reads
// SQL statements and runs each one in its own transaction, retrying
// when the transaction is picked as a deadlock victim.
//
// Usage: simple-db [catalog-file]
//
// Meta commands: \d lists tables, \q quits.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ggstudy11/simple-db/godb"
)

const bufferPoolPages = 50

func main() {
	catalogPath := "catalog.txt"
	if len(os.Args) > 1 {
		catalogPath = os.Args[1]
	}

	bp, err := godb.NewBufferPool(bufferPoolPages)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootDir := filepath.Dir(catalogPath)
	lf, err := godb.NewLogFile(filepath.Join(rootDir, "godb.log"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lf.Close()
	bp.UseLogFile(lf)

	c := godb.NewCatalog(bp, rootDir)
	catalogFile, err := os.Open(catalogPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := c.LoadSchema(catalogFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	catalogFile.Close()

	rl, err := readline.New("godb> ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("GoDB shell. \\d lists tables, \\q quits.")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		switch {
		case line == "":
			continue
		case line == `\q`:
			return
		case line == `\d`:
			for _, name := range c.TableNames() {
				hf, _ := c.GetTable(name)
				fmt.Printf("%s%s\n", name, hf.Descriptor().HeaderString(false))
			}
			continue
		}

		if err := runQuery(c, bp, line); err != nil {
			fmt.Println(err)
		}
	}
}

func runQuery(c *godb.Catalog, bp *godb.BufferPool, query string) error {
	plan, err := godb.Parse(c, query)
	if err != nil {
		return err
	}

	for {
		err := runOnce(bp, plan)
		if err == nil {
			return nil
		}
		if godb.IsTransactionAborted(err) {
			fmt.Println("deadlock victim; retrying")
			continue
		}
		return err
	}
}

func runOnce(bp *godb.BufferPool, plan godb.Operator) error {
	tid := godb.NewTID()
	if err := bp.BeginTransaction(tid); err != nil {
		return err
	}

	iter, err := plan.Iterator(tid)
	if err != nil {
		bp.AbortTransaction(tid)
		return err
	}

	fmt.Println(plan.Descriptor().HeaderString(true))
	rows := 0
	for {
		t, err := iter()
		if err != nil {
			bp.AbortTransaction(tid)
			return err
		}
		if t == nil {
			break
		}
		fmt.Println(t.PrettyPrintString(true))
		rows++
	}
	bp.CommitTransaction(tid)
	fmt.Printf("(%d rows)\n", rows)
	return nil
}
