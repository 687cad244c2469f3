// Package schema defines the raw table layouts and owns DDL execution for
// the pipeline database. Column positions match the OpenSecrets bulk-file
// layouts; every bulk column is stored as TEXT and typed at query time.
package schema

// Table describes one raw bulk table: its name and ordered columns.
type Table struct {
	Name    string
	Columns []string
}

// Width returns the expected field count for rows destined for this table.
func (t Table) Width() int {
	return len(t.Columns)
}

var (
	Candidates = Table{
		Name: "candidates",
		Columns: []string{
			"Cycle", "FECCanID", "CID", "CRPName", "Party",
			"DistIDRunFor", "DistIDRunIn", "CurrCand", "CycleCand",
			"CRPICO", "RecipCode", "NoPacs",
		},
	}

	Committees = Table{
		Name: "committees",
		Columns: []string{
			"Cycle", "CMteID", "CMteName", "Affiliate", "UltOrg",
			"RecipID", "CMtePrimCode", "OtherID", "Party", "PrimCode",
			"Source", "Sensitive", "IsActBlue", "Extra",
		},
	}

	IndividualContributions = Table{
		Name: "individual_contributions",
		Columns: []string{
			"Cycle", "FECTransID", "ContribID", "Contributor", "RecipID",
			"Orgname", "UltOrg", "RealCode", "Date", "Amount",
			"Street", "City", "State", "Zip", "RecipCode",
			"Type", "CmteID", "OtherID", "Gender", "Microfilm",
			"Occupation", "Employer", "Source",
		},
	}

	PACsToCandidates = Table{
		Name: "pacs_to_candidates",
		Columns: []string{
			"Cycle", "FECTransID", "CommID", "CandID", "Amount",
			"Date", "PrimCode", "Type", "DI", "RecipCode",
		},
	}

	PACToPAC = Table{
		Name: "pac_to_pac",
		Columns: []string{
			"Cycle", "FECTransID", "CommID", "CommName",
			"Payee", "PayeeCity", "PayeeState", "PayeeZip", "Extra1",
			"PrimCode", "Date", "Amount", "RecipCommID", "Party",
			"OtherCmteID", "RecipCmteType", "RealCode", "Extra2",
			"Type", "CmteClass", "Microfilm", "FECType", "PrimCode2",
			"Source",
		},
	}

	Expenditures = Table{
		Name: "expenditures",
		Columns: []string{
			"Cycle", "SeqNo", "TransID", "RecipID", "RecipCode",
			"CommName", "Payee", "PayeeCode", "Amount", "Date",
			"City", "State", "Zip", "Addr1", "Extra1",
			"Extra2", "Extra3", "Extra4", "PrimCode", "Extra5",
			"ExpType", "Source",
		},
	}

	Cmtes527 = Table{
		Name: "cmtes_527",
		Columns: []string{
			"Year", "QuarterYr", "EIN", "OrgName", "ShortName",
			"CMteName", "CMteType", "Affiliate1", "Affiliate2", "Affiliate3",
			"Party", "PrimCode", "Source", "FilingType", "Ctype",
			"FilingInfo", "ViewPt", "Extra", "State",
		},
	}

	Receipts527 = Table{
		Name: "receipts_527",
		Columns: []string{
			"QuarterYr", "EIN", "FilingNo", "RecipEIN",
			"OrgNameShort", "OrgNameLong", "Addr1", "City", "State", "Zip",
			"Amount", "Date", "RecipID", "RecipName", "RecipType", "SourceCode",
		},
	}

	Expenditures527 = Table{
		Name: "expenditures_527",
		Columns: []string{
			"QuarterYr", "EIN", "TransSeqNo", "CMteName", "PaidByEIN",
			"PayeeShort", "PayeeLong", "Amount", "Date", "ExpCategoryCode",
			"Status", "Description", "Addr1", "Addr2", "City",
			"State", "Zip", "RecipName", "RecipTitle",
		},
	}

	CategoryCodes = Table{
		Name: "category_codes",
		Columns: []string{
			"Catcode", "Catname", "Catorder", "Industry", "Sector", "SectorLong",
		},
	}
)

// BulkTables lists the tables populated from bulk files, in no particular
// order. cpi_factors and category_codes are reference tables and load
// through their own path.
var BulkTables = []Table{
	Candidates,
	Committees,
	IndividualContributions,
	PACsToCandidates,
	PACToPAC,
	Expenditures,
	Cmtes527,
	Receipts527,
	Expenditures527,
}
