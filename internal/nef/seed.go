package nef

// SeededTables lists the reference tables that are pre-populated on first run.
var SeededTables = []string{TableTeams, TableRoles, TableSchedules, TableContractTypes}

// SeedRows returns fresh copies of the default reference rows for table, or
// nil for tables that start empty.
func SeedRows(table string) []Record {
	switch table {
	case TableTeams:
		return []Record{
			{"id": 1, "name": "Direção", "description": "Líder/Gerente"},
			{"id": 2, "name": "RH", "description": "Setor de pessoal"},
			{"id": 3, "name": "Supervisor", "description": "Supervisor de Equipe"},
			{"id": 4, "name": "Control Desk", "description": "Auxiliar de Escritório"},
			{"id": 5, "name": "Negociador", "description": "Negociador de Cobrança"},
		}
	case TableRoles:
		return []Record{
			{"id": 1, "name": "Auxiliar", "level": 1},
			{"id": 2, "name": "Assistente", "level": 2},
			{"id": 3, "name": "Analista", "level": 3},
			{"id": 4, "name": "Supervisor", "level": 4},
			{"id": 5, "name": "Gerente", "level": 5},
			{"id": 6, "name": "Diretor", "level": 6},
		}
	case TableSchedules:
		return []Record{
			{"id": 1, "name": "Matutino", "start": "08:00", "end": "12:00", "type": "parcial"},
			{"id": 2, "name": "Vespertino", "start": "13:00", "end": "17:00", "type": "parcial"},
			{"id": 3, "name": "Integral", "start": "08:00", "end": "18:00", "type": "integral"},
		}
	case TableContractTypes:
		return []Record{
			{"id": 1, "name": "Estagiário", "type": "estagiario"},
			{"id": 2, "name": "CLT", "type": "clt"},
			{"id": 3, "name": "Temporário", "type": "temporario"},
		}
	default:
		return nil
	}
}

// SeededDump returns a document with every known table present: reference
// tables hold their defaults, the rest are empty.
func SeededDump() *Dump {
	d := NewDump()
	d.Meta.Version = DocumentVersion
	for _, name := range KnownTables {
		rows := SeedRows(name)
		if rows == nil {
			rows = []Record{}
		}
		d.Tables[name] = rows
	}
	return d
}
