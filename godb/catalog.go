package godb

// The catalog maps table names and ids to heap files and schemas. Tables
// are registered either programmatically via AddTable or from a schema
// file with lines of the form:
//
//	table_name (field1 int, field2 string, ...)

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
)

type tableInfo struct {
	name string
	file *HeapFile
}

type Catalog struct {
	mu      sync.Mutex
	bufPool *BufferPool
	rootDir string
	byName  map[string]*tableInfo
	byID    map[int]*tableInfo
}

// NewCatalog creates an empty catalog whose table backing files live in
// rootDir.
func NewCatalog(bp *BufferPool, rootDir string) *Catalog {
	return &Catalog{
		bufPool: bp,
		rootDir: rootDir,
		byName:  make(map[string]*tableInfo),
		byID:    make(map[int]*tableInfo),
	}
}

// BufferPool returns the pool shared by all of the catalog's tables.
func (c *Catalog) BufferPool() *BufferPool {
	return c.bufPool
}

// AddTable registers a table with the given schema, creating its backing
// file (<rootDir>/<name>.dat) if needed.
func (c *Catalog) AddTable(name string, td TupleDesc) (*HeapFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.byName[name]; dup {
		return nil, GoDBError{DuplicateTableError, fmt.Sprintf("table %s already exists", name)}
	}
	hf, err := NewHeapFile(filepath.Join(c.rootDir, name+".dat"), &td, c.bufPool)
	if err != nil {
		return nil, err
	}
	info := &tableInfo{name: name, file: hf}
	c.byName[name] = info
	c.byID[hf.TableID()] = info
	return hf, nil
}

// GetTable returns the heap file for the named table.
func (c *Catalog) GetTable(name string) (*HeapFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.byName[name]
	if !ok {
		return nil, GoDBError{NoSuchTableError, fmt.Sprintf("no table named %s", name)}
	}
	return info.file, nil
}

// GetDatabaseFile returns the heap file for the given table id.
func (c *Catalog) GetDatabaseFile(tableID int) (DBFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.byID[tableID]
	if !ok {
		return nil, GoDBError{NoSuchTableError, fmt.Sprintf("no table with id %d", tableID)}
	}
	return info.file, nil
}

// GetTableName returns the name of the table with the given id.
func (c *Catalog) GetTableName(tableID int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.byID[tableID]
	if !ok {
		return "", GoDBError{NoSuchTableError, fmt.Sprintf("no table with id %d", tableID)}
	}
	return info.name, nil
}

// TableIDIterator returns an iterator over the ids of all registered
// tables; the second return is false after the last id.
func (c *Catalog) TableIDIterator() func() (int, bool) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	i := 0
	return func() (int, bool) {
		if i >= len(ids) {
			return 0, false
		}
		id := ids[i]
		i++
		return id, true
	}
}

// TableNames returns the names of all registered tables.
func (c *Catalog) TableNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	return names
}

// LoadSchema registers the tables described by a schema file, one table
// per line.
func (c *Catalog) LoadSchema(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		open := strings.Index(line, "(")
		end := strings.LastIndex(line, ")")
		if open < 1 || end < open {
			return GoDBError{ParseError, fmt.Sprintf("malformed schema line %d: %s", lineNo, line)}
		}
		name := strings.TrimSpace(line[:open])

		var td TupleDesc
		for _, fieldSpec := range strings.Split(line[open+1:end], ",") {
			parts := strings.Fields(strings.TrimSpace(fieldSpec))
			if len(parts) != 2 {
				return GoDBError{ParseError, fmt.Sprintf("malformed field %q on schema line %d", fieldSpec, lineNo)}
			}
			var ftype DBType
			switch strings.ToLower(parts[1]) {
			case "int":
				ftype = IntType
			case "string":
				ftype = StringType
			default:
				return GoDBError{ParseError, fmt.Sprintf("unknown field type %s on schema line %d", parts[1], lineNo)}
			}
			td.Fields = append(td.Fields, FieldType{Fname: parts[0], TableQualifier: name, Ftype: ftype})
		}

		if _, err := c.AddTable(name, td); err != nil {
			return err
		}
	}
	return scanner.Err()
}
