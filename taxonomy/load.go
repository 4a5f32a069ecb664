package taxonomy

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"talaria/internal/talerr"
	"talaria/taxon"
)

// ProgressFunc is called every 10,000 parsed rows during a taxonomy load
// (spec §4.C).
type ProgressFunc func(rowsProcessed int)

// LoadNCBITaxonomy streams nodes.dmp and names.dmp from dir, rejecting
// cycles and dangling parents.
func LoadNCBITaxonomy(fs afero.Fs, dir string, progress ProgressFunc) (*Tree, error) {
	nodes, err := loadNodes(fs, dir+"/nodes.dmp", progress)
	if err != nil {
		return nil, err
	}
	if err := loadNames(fs, dir+"/names.dmp", nodes); err != nil {
		return nil, err
	}

	tree := &Tree{Nodes: nodes, Root: taxon.Root}
	linkChildren(tree)
	if err := rejectDanglingParents(tree); err != nil {
		return nil, err
	}
	if err := rejectCycles(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func loadNodes(fs afero.Fs, path string, progress ProgressFunc) (map[taxon.ID]*Node, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "open nodes.dmp", err)
	}
	defer f.Close()

	nodes := make(map[taxon.ID]*Node, 1<<16)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	rows := 0
	for scanner.Scan() {
		fields := splitDmpLine(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		idN, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, talerr.Wrap(talerr.Corrupted, "parse taxid in nodes.dmp", err)
		}
		parentN, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, talerr.Wrap(talerr.Corrupted, "parse parent taxid in nodes.dmp", err)
		}
		id := taxon.ID(idN)
		nodes[id] = &Node{ID: id, Parent: taxon.ID(parentN), Rank: fields[2]}

		rows++
		if progress != nil && rows%10000 == 0 {
			progress(rows)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, talerr.Wrap(talerr.IOFailure, "scan nodes.dmp", err)
	}
	if progress != nil {
		progress(rows)
	}
	return nodes, nil
}

func loadNames(fs afero.Fs, path string, nodes map[taxon.ID]*Node) error {
	f, err := fs.Open(path)
	if err != nil {
		return talerr.Wrap(talerr.IOFailure, "open names.dmp", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		fields := splitDmpLine(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if fields[3] != "scientific name" {
			continue
		}
		idN, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		if n, ok := nodes[taxon.ID(idN)]; ok {
			n.Name = fields[1]
		}
	}
	return talerr.Wrap(talerr.IOFailure, "scan names.dmp", scanner.Err())
}

// splitDmpLine splits an NCBI dump line on the "\t|\t" / trailing "\t|"
// convention and trims surrounding whitespace from each field.
func splitDmpLine(line string) []string {
	raw := strings.Split(line, "|")
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		f = strings.TrimSpace(f)
		if f == "" && len(fields) == len(raw)-1 {
			continue // trailing empty field from the dump's terminal "|"
		}
		fields = append(fields, f)
	}
	return fields
}

func linkChildren(tree *Tree) {
	for id, n := range tree.Nodes {
		if id == tree.Root {
			continue
		}
		if parent, ok := tree.Nodes[n.Parent]; ok {
			parent.Children = append(parent.Children, id)
		}
	}
}

func rejectDanglingParents(tree *Tree) error {
	for id, n := range tree.Nodes {
		if id == tree.Root {
			continue
		}
		if _, ok := tree.Nodes[n.Parent]; !ok {
			return talerr.Newf(talerr.Corrupted, "taxon %s has dangling parent %s", id, n.Parent)
		}
	}
	return nil
}

func rejectCycles(tree *Tree) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[taxon.ID]int, len(tree.Nodes))
	for id := range tree.Nodes {
		if color[id] != white {
			continue
		}
		path := []taxon.ID{}
		cur := id
		for {
			if color[cur] == black {
				break
			}
			if color[cur] == gray {
				return talerr.Newf(talerr.Corrupted, "taxonomy cycle detected at %s", cur)
			}
			color[cur] = gray
			path = append(path, cur)
			if cur == tree.Root {
				break
			}
			n, ok := tree.Nodes[cur]
			if !ok {
				break
			}
			cur = n.Parent
		}
		for _, p := range path {
			color[p] = black
		}
	}
	return nil
}
